// Package knowledge keeps one searchable document index per user.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

// ErrEmptyUpload is returned for uploads without content.
var ErrEmptyUpload = errors.New("knowledge: empty upload")

// IndexedFile is one item of a listing page.
type IndexedFile struct {
	ID     string
	Status string
	// ProcessedAt is nil unless the provider reports it.
	ProcessedAt *time.Time
}

// Page is one page of an index listing.
type Page struct {
	Items   []IndexedFile
	HasMore bool
}

// FileMetadata is what the provider knows about an uploaded file.
type FileMetadata struct {
	Filename string
	Bytes    int64
}

// Index is the remote document index.
type Index interface {
	Create(ctx context.Context, name string) (string, error)
	// Upload stores content and attaches it to the index, returning the file id.
	Upload(ctx context.Context, indexID, filename string, content []byte) (string, error)
	// ListFiles returns the page following cursor, an item id. An empty cursor starts at the beginning.
	ListFiles(ctx context.Context, indexID, cursor string) (Page, error)
	RetrieveFileMetadata(ctx context.Context, fileID string) (FileMetadata, error)
	Search(ctx context.Context, indexID, query string, limit int) ([]models.KnowledgeHit, error)
}
