package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	untitled         = "untitled"
	statusInProgress = "in_progress"
)

// Indexer owns the per-user index and its persisted file listing.
type Indexer struct {
	index  Index
	store  storage.KnowledgeStore
	prefix string
	group  singleflight.Group
	locks  sync.Map // user id -> *sync.Mutex
	logger *zap.Logger
}

// NewIndexer names new indexes "<prefix>-<user id>".
func NewIndexer(index Index, store storage.KnowledgeStore, prefix string, logger *zap.Logger) *Indexer {
	if prefix == "" {
		prefix = "frontdesk"
	}
	return &Indexer{
		index:  index,
		store:  store,
		prefix: prefix,
		logger: logger,
	}
}

func (x *Indexer) lock(userID string) func() {
	v, _ := x.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (x *Indexer) load(ctx context.Context, userID string) (*models.KnowledgeRecord, error) {
	record, err := x.store.GetKnowledge(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge record: %w", err)
	}
	return record, nil
}

// ensureIndex returns the user's index id, creating the index once.
func (x *Indexer) ensureIndex(ctx context.Context, userID string) (string, error) {
	if record, err := x.load(ctx, userID); err != nil {
		return "", err
	} else if record != nil && record.IndexID != "" {
		return record.IndexID, nil
	}

	v, err, _ := x.group.Do(userID, func() (any, error) {
		record, err := x.load(ctx, userID)
		if err != nil {
			return "", err
		}
		if record != nil && record.IndexID != "" {
			return record.IndexID, nil
		}

		id, err := x.index.Create(ctx, x.prefix+"-"+userID)
		if err != nil {
			return "", err
		}

		unlock := x.lock(userID)
		defer unlock()
		record, err = x.load(ctx, userID)
		if err != nil {
			return "", err
		}
		if record == nil {
			record = &models.KnowledgeRecord{UserID: userID}
		}
		record.IndexID = id
		if err := x.store.SaveKnowledge(ctx, record); err != nil {
			return "", fmt.Errorf("saving knowledge record: %w", err)
		}
		x.logger.Info("Created knowledge index",
			zap.String("user_id", userID),
			zap.String("index_id", id))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Upload attaches content to the user's index.
func (x *Indexer) Upload(ctx context.Context, userID, filename string, content []byte) (models.KnowledgeFile, error) {
	if len(content) == 0 {
		return models.KnowledgeFile{}, ErrEmptyUpload
	}
	if filename == "" {
		filename = "upload-" + uuid.NewString() + ".txt"
	}

	indexID, err := x.ensureIndex(ctx, userID)
	if err != nil {
		return models.KnowledgeFile{}, err
	}
	fileID, err := x.index.Upload(ctx, indexID, filename, content)
	if err != nil {
		return models.KnowledgeFile{}, err
	}

	file := models.KnowledgeFile{
		ID:       fileID,
		Filename: filename,
		Bytes:    int64(len(content)),
		Status:   statusInProgress,
	}

	unlock := x.lock(userID)
	defer unlock()
	record, err := x.load(ctx, userID)
	if err != nil {
		return models.KnowledgeFile{}, err
	}
	if record == nil {
		record = &models.KnowledgeRecord{UserID: userID, IndexID: indexID}
	}
	record.Files = append(record.Files, file)
	if err := x.store.SaveKnowledge(ctx, record); err != nil {
		return models.KnowledgeFile{}, fmt.Errorf("saving knowledge record: %w", err)
	}

	x.logger.Info("Uploaded knowledge file",
		zap.String("user_id", userID),
		zap.String("file_id", fileID),
		zap.Int("bytes", len(content)))
	return file, nil
}

// Status returns the persisted listing. With refresh the listing is rebuilt from the index first.
func (x *Indexer) Status(ctx context.Context, userID string, refresh bool) (*models.KnowledgeRecord, error) {
	record, err := x.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.IndexID == "" {
		return &models.KnowledgeRecord{UserID: userID, Files: []models.KnowledgeFile{}}, nil
	}
	if !refresh {
		if record.Files == nil {
			record.Files = []models.KnowledgeFile{}
		}
		return record, nil
	}

	files, err := x.listAll(ctx, record.IndexID)
	if err != nil {
		return nil, err
	}

	unlock := x.lock(userID)
	defer unlock()
	latest, err := x.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		latest = record
	}
	latest.Files = files
	if err := x.store.SaveKnowledge(ctx, latest); err != nil {
		return nil, fmt.Errorf("saving knowledge record: %w", err)
	}
	return latest, nil
}

// listAll pages through the index until it reports no more pages.
func (x *Indexer) listAll(ctx context.Context, indexID string) ([]models.KnowledgeFile, error) {
	files := []models.KnowledgeFile{}
	seen := make(map[string]bool)

	cursor := ""
	for {
		page, err := x.index.ListFiles(ctx, indexID, cursor)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			files = append(files, x.describe(ctx, item))
		}

		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		last := page.Items[len(page.Items)-1].ID
		if last == cursor {
			x.logger.Warn("Index listing did not advance", zap.String("index_id", indexID), zap.String("cursor", cursor))
			break
		}
		cursor = last
	}
	return files, nil
}

func (x *Indexer) describe(ctx context.Context, item IndexedFile) models.KnowledgeFile {
	file := models.KnowledgeFile{ID: item.ID, Filename: untitled, Status: item.Status, LastProcessedAt: item.ProcessedAt}

	meta, err := x.index.RetrieveFileMetadata(ctx, item.ID)
	if err != nil {
		x.logger.Warn("File metadata lookup failed",
			zap.String("file_id", item.ID),
			zap.Error(err))
		return file
	}
	if meta.Filename != "" {
		file.Filename = meta.Filename
	}
	file.Bytes = meta.Bytes
	return file
}

// Search looks up the user's index. Users without an index get no hits.
func (x *Indexer) Search(ctx context.Context, userID, query string, limit int) ([]models.KnowledgeHit, error) {
	record, err := x.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.IndexID == "" {
		return nil, nil
	}
	return x.index.Search(ctx, record.IndexID, query, limit)
}
