// Package storage provides the document store abstraction the pipeline reads from.
// Callers only ever hold an opaque handle plus a streaming reader; nothing in the
// pipeline assumes documents live on a filesystem.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// DocumentInfo contains metadata about a stored document
type DocumentInfo struct {
	Handle      uuid.UUID `json:"handle"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentStore defines the interface for raw document storage
type DocumentStore interface {
	// Store persists the document bytes and returns a stable handle
	Store(ctx context.Context, name string, contentType string, r io.Reader) (*DocumentInfo, error)

	// Open returns a streaming reader for a stored document
	Open(ctx context.Context, handle uuid.UUID) (io.ReadCloser, error)

	// Info returns metadata without reading the document body
	Info(ctx context.Context, handle uuid.UUID) (*DocumentInfo, error)

	// Delete removes a document by handle
	Delete(ctx context.Context, handle uuid.UUID) error
}
