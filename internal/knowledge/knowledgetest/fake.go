// Package knowledgetest provides an in-memory knowledge.Index for tests.
package knowledgetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/frontdesk/internal/knowledge"
	"github.com/xaenox/frontdesk/internal/models"
)

type file struct {
	id      string
	name    string
	content string
}

// Index keeps files in memory and lists them PageSize at a time.
type Index struct {
	mu       sync.Mutex
	PageSize int
	// MetaErrs fails metadata lookups for the given file ids.
	MetaErrs map[string]error
	// ProcessedAt is reported in listings for the given file ids.
	ProcessedAt map[string]time.Time
	indexes  map[string][]file
	creates  int
	lists    int
	nextID   int
}

func New() *Index {
	return &Index{
		PageSize:    2,
		MetaErrs:    map[string]error{},
		ProcessedAt: map[string]time.Time{},
		indexes:     map[string][]file{},
	}
}

func (x *Index) Create(_ context.Context, name string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.creates++
	id := fmt.Sprintf("vs%d", x.creates)
	x.indexes[id] = nil
	return id, nil
}

func (x *Index) Upload(_ context.Context, indexID, filename string, content []byte) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.indexes[indexID]; !ok {
		return "", fmt.Errorf("no index %s", indexID)
	}
	x.nextID++
	id := fmt.Sprintf("file-%d", x.nextID)
	x.indexes[indexID] = append(x.indexes[indexID], file{id: id, name: filename, content: string(content)})
	return id, nil
}

func (x *Index) ListFiles(_ context.Context, indexID, cursor string) (knowledge.Page, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lists++

	files := x.indexes[indexID]
	start := 0
	if cursor != "" {
		for i, f := range files {
			if f.id == cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+x.PageSize, len(files))

	var page knowledge.Page
	for _, f := range files[start:end] {
		item := knowledge.IndexedFile{ID: f.id, Status: "completed"}
		if at, ok := x.ProcessedAt[f.id]; ok {
			item.ProcessedAt = &at
		}
		page.Items = append(page.Items, item)
	}
	page.HasMore = end < len(files)
	return page, nil
}

func (x *Index) RetrieveFileMetadata(_ context.Context, fileID string) (knowledge.FileMetadata, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.MetaErrs[fileID]; err != nil {
		return knowledge.FileMetadata{}, err
	}
	for _, files := range x.indexes {
		for _, f := range files {
			if f.id == fileID {
				return knowledge.FileMetadata{Filename: f.name, Bytes: int64(len(f.content))}, nil
			}
		}
	}
	return knowledge.FileMetadata{}, fmt.Errorf("no file %s", fileID)
}

// Search returns every file whose content contains a word of the query.
func (x *Index) Search(_ context.Context, indexID, query string, limit int) ([]models.KnowledgeHit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var hits []models.KnowledgeHit
	words := strings.Fields(strings.ToLower(query))
	for _, f := range x.indexes[indexID] {
		content := strings.ToLower(f.content)
		for _, w := range words {
			if len(w) > 3 && strings.Contains(content, strings.Trim(w, "?.,!")) {
				hits = append(hits, models.KnowledgeHit{FileID: f.id, Filename: f.name, Score: 1, Text: f.content})
				break
			}
		}
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Creates returns how many indexes were created.
func (x *Index) Creates() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.creates
}

// Lists returns how many pages were requested.
func (x *Index) Lists() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lists
}
