package knowledge_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/knowledge"
	"github.com/xaenox/frontdesk/internal/knowledge/knowledgetest"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/zap"
)

func newIndexer(t *testing.T) (*knowledge.Indexer, *knowledgetest.Index, *storage.MemoryStorage) {
	t.Helper()
	index := knowledgetest.New()
	store := storage.NewMemoryStorage()
	return knowledge.NewIndexer(index, store, "test", zap.NewNop()), index, store
}

func TestUploadThenRefreshListsFile(t *testing.T) {
	ctx := context.Background()
	x, _, _ := newIndexer(t)

	file, err := x.Upload(ctx, "u1", "hours.md", []byte("We are open 9 to 5."))
	require.NoError(t, err)
	assert.Equal(t, "hours.md", file.Filename)
	assert.EqualValues(t, 19, file.Bytes)

	record, err := x.Status(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, record.Files, 1)
	assert.Equal(t, file.ID, record.Files[0].ID)
	assert.Equal(t, "hours.md", record.Files[0].Filename)
	assert.Equal(t, "completed", record.Files[0].Status)
	assert.Nil(t, record.Files[0].LastProcessedAt)
}

func TestRefreshKeepsReportedProcessingTime(t *testing.T) {
	ctx := context.Background()
	x, index, _ := newIndexer(t)

	first, err := x.Upload(ctx, "u1", "hours.md", []byte("We are open 9 to 5."))
	require.NoError(t, err)
	_, err = x.Upload(ctx, "u1", "prices.md", []byte("Consults are free."))
	require.NoError(t, err)
	at := time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)
	index.ProcessedAt[first.ID] = at

	record, err := x.Status(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, record.Files, 2)
	require.NotNil(t, record.Files[0].LastProcessedAt)
	assert.True(t, record.Files[0].LastProcessedAt.Equal(at))
	assert.Nil(t, record.Files[1].LastProcessedAt)
}

func TestRefreshPaginatesUntilNoMore(t *testing.T) {
	ctx := context.Background()
	x, index, _ := newIndexer(t)

	for i := range 5 {
		_, err := x.Upload(ctx, "u1", fmt.Sprintf("doc-%d.txt", i), []byte("content"))
		require.NoError(t, err)
	}

	record, err := x.Status(ctx, "u1", true)
	require.NoError(t, err)
	assert.Len(t, record.Files, 5)
	assert.Equal(t, 3, index.Lists())

	seen := map[string]bool{}
	for _, f := range record.Files {
		seen[f.ID] = true
	}
	assert.Len(t, seen, 5)
}

func TestRefreshSurvivesMetadataFailure(t *testing.T) {
	ctx := context.Background()
	x, index, _ := newIndexer(t)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := x.Upload(ctx, "u1", name, []byte("content"))
		require.NoError(t, err)
	}
	index.MetaErrs["file-2"] = errors.New("lookup failed")

	record, err := x.Status(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, record.Files, 3)
	assert.Equal(t, "a.txt", record.Files[0].Filename)
	assert.Equal(t, "untitled", record.Files[1].Filename)
	assert.Zero(t, record.Files[1].Bytes)
	assert.Equal(t, "c.txt", record.Files[2].Filename)
}

func TestStatusWithoutIndex(t *testing.T) {
	x, index, _ := newIndexer(t)

	record, err := x.Status(context.Background(), "nobody", true)
	require.NoError(t, err)
	assert.NotNil(t, record.Files)
	assert.Empty(t, record.Files)
	assert.Zero(t, index.Lists())

	hits, err := x.Search(context.Background(), "nobody", "hours", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStatusWithoutRefreshUsesStoredListing(t *testing.T) {
	ctx := context.Background()
	x, index, _ := newIndexer(t)

	_, err := x.Upload(ctx, "u1", "a.txt", []byte("content"))
	require.NoError(t, err)

	record, err := x.Status(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, record.Files, 1)
	assert.Equal(t, "in_progress", record.Files[0].Status)
	assert.Zero(t, index.Lists())
}

func TestConcurrentUploadsShareOneIndex(t *testing.T) {
	ctx := context.Background()
	x, index, store := newIndexer(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := x.Upload(ctx, "u1", fmt.Sprintf("doc-%d.txt", i), []byte("content"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, index.Creates())
	record, err := store.GetKnowledge(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, record.Files, 10)
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	x, _, _ := newIndexer(t)
	_, err := x.Upload(context.Background(), "u1", "a.txt", nil)
	assert.ErrorIs(t, err, knowledge.ErrEmptyUpload)
}

func TestSearchUsesUserIndex(t *testing.T) {
	ctx := context.Background()
	x, _, _ := newIndexer(t)

	_, err := x.Upload(ctx, "u1", "hours.md", []byte("Our opening hours are 9 to 5."))
	require.NoError(t, err)

	hits, err := x.Search(ctx, "u1", "What are your hours?", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "hours.md", hits[0].Filename)

	hits, err = x.Search(ctx, "u2", "What are your hours?", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestOpenAIIndex(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/vector_stores/vs1/files"):
			cursors = append(cursors, r.URL.Query().Get("after"))
			if r.URL.Query().Get("after") == "" {
				fmt.Fprint(w, `{"object":"list","data":[{"id":"file-1","object":"vector_store.file","status":"completed"}],"first_id":"file-1","last_id":"file-1","has_more":true}`)
				return
			}
			fmt.Fprint(w, `{"object":"list","data":[{"id":"file-2","object":"vector_store.file","status":"in_progress"}],"first_id":"file-2","last_id":"file-2","has_more":false}`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files/file-1"):
			fmt.Fprint(w, `{"id":"file-1","object":"file","bytes":42,"filename":"faq.md","purpose":"assistants"}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/vector_stores/vs1/search"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "hours", body["query"])
			fmt.Fprint(w, `{"object":"vector_store.search_results.page","search_query":["hours"],"data":[{"file_id":"file-1","filename":"faq.md","score":0.91,"attributes":{},"content":[{"type":"text","text":"Open 9 to 5."}]}],"has_more":false,"next_page":null}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	x := knowledge.NewOpenAIIndex("test-key", srv.URL+"/v1", zap.NewNop())
	ctx := context.Background()

	page, err := x.ListFiles(ctx, "vs1", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.HasMore)

	page, err = x.ListFiles(ctx, "vs1", page.Items[0].ID)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, []string{"", "file-1"}, cursors)

	meta, err := x.RetrieveFileMetadata(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, knowledge.FileMetadata{Filename: "faq.md", Bytes: 42}, meta)

	hits, err := x.Search(ctx, "vs1", "hours", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "faq.md", hits[0].Filename)
	assert.Equal(t, "Open 9 to 5.", hits[0].Text)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
}
