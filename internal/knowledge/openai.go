package knowledge

import (
	"context"
	"fmt"
	"strings"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

const listPageSize = 100

// OpenAIIndex stores documents in OpenAI vector stores.
type OpenAIIndex struct {
	client *openai.Client
	search openaigo.Client
	logger *zap.Logger
}

// NewOpenAIIndex builds an index against the OpenAI API. baseURL may be empty.
func NewOpenAIIndex(apiKey, baseURL string, logger *zap.Logger) *OpenAIIndex {
	cfg := openai.DefaultConfig(apiKey)
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		baseURL = strings.TrimSuffix(baseURL, "/")
		cfg.BaseURL = baseURL
		opts = append(opts, option.WithBaseURL(baseURL+"/"))
	}
	return &OpenAIIndex{
		client: openai.NewClientWithConfig(cfg),
		search: openaigo.NewClient(opts...),
		logger: logger,
	}
}

func (x *OpenAIIndex) Create(ctx context.Context, name string) (string, error) {
	store, err := x.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("creating vector store: %w", err)
	}
	return store.ID, nil
}

func (x *OpenAIIndex) Upload(ctx context.Context, indexID, filename string, content []byte) (string, error) {
	file, err := x.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   content,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}

	if _, err := x.client.CreateVectorStoreFile(ctx, indexID, openai.VectorStoreFileRequest{FileID: file.ID}); err != nil {
		return "", fmt.Errorf("attaching file %s: %w", file.ID, err)
	}
	x.logger.Debug("Attached file to vector store",
		zap.String("index_id", indexID),
		zap.String("file_id", file.ID))
	return file.ID, nil
}

func (x *OpenAIIndex) ListFiles(ctx context.Context, indexID, cursor string) (Page, error) {
	limit := listPageSize
	order := "asc"
	pagination := openai.Pagination{Limit: &limit, Order: &order}
	if cursor != "" {
		pagination.After = &cursor
	}

	list, err := x.client.ListVectorStoreFiles(ctx, indexID, pagination)
	if err != nil {
		return Page{}, fmt.Errorf("listing vector store files: %w", err)
	}

	page := Page{HasMore: list.HasMore}
	for _, f := range list.VectorStoreFiles {
		page.Items = append(page.Items, IndexedFile{ID: f.ID, Status: f.Status})
	}
	return page, nil
}

func (x *OpenAIIndex) RetrieveFileMetadata(ctx context.Context, fileID string) (FileMetadata, error) {
	file, err := x.client.GetFile(ctx, fileID)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("retrieving file %s: %w", fileID, err)
	}
	return FileMetadata{Filename: file.FileName, Bytes: int64(file.Bytes)}, nil
}

func (x *OpenAIIndex) Search(ctx context.Context, indexID, query string, limit int) ([]models.KnowledgeHit, error) {
	params := openaigo.VectorStoreSearchParams{
		Query: openaigo.VectorStoreSearchParamsQueryUnion{OfString: openaigo.String(query)},
	}
	if limit > 0 {
		params.MaxNumResults = openaigo.Int(int64(limit))
	}

	page, err := x.search.VectorStores.Search(ctx, indexID, params)
	if err != nil {
		return nil, fmt.Errorf("searching vector store: %w", err)
	}

	hits := make([]models.KnowledgeHit, 0, len(page.Data))
	for _, r := range page.Data {
		var text []string
		for _, c := range r.Content {
			if c.Text != "" {
				text = append(text, c.Text)
			}
		}
		hits = append(hits, models.KnowledgeHit{
			FileID:   r.FileID,
			Filename: r.Filename,
			Score:    r.Score,
			Text:     strings.Join(text, "\n"),
		})
	}
	return hits, nil
}
