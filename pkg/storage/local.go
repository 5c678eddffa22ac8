package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalStore implements DocumentStore on the local filesystem.
// Documents are keyed by handle only; the original filename is kept in the
// metadata sidecar, never in the storage path.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local filesystem document store
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, ".meta"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Store persists the document bytes and returns a stable handle
func (s *LocalStore) Store(ctx context.Context, name string, contentType string, r io.Reader) (*DocumentInfo, error) {
	handle := uuid.New()
	docPath := s.docPath(handle)

	f, err := os.Create(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(docPath)
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	info := &DocumentInfo{
		Handle:      handle,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}

	if err := s.saveMetadata(info); err != nil {
		os.Remove(docPath)
		return nil, err
	}

	return info, nil
}

// Open returns a streaming reader for a stored document
func (s *LocalStore) Open(ctx context.Context, handle uuid.UUID) (io.ReadCloser, error) {
	if _, err := s.Info(ctx, handle); err != nil {
		return nil, err
	}

	f, err := os.Open(s.docPath(handle))
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return f, nil
}

// Info returns metadata without reading the document body
func (s *LocalStore) Info(ctx context.Context, handle uuid.UUID) (*DocumentInfo, error) {
	data, err := os.ReadFile(s.metaPath(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document not found: %s", handle)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info DocumentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// Delete removes a document by handle
func (s *LocalStore) Delete(ctx context.Context, handle uuid.UUID) error {
	if err := os.Remove(s.docPath(handle)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	os.Remove(s.metaPath(handle))
	return nil
}

func (s *LocalStore) docPath(handle uuid.UUID) string {
	return filepath.Join(s.basePath, handle.String())
}

func (s *LocalStore) metaPath(handle uuid.UUID) string {
	return filepath.Join(s.basePath, ".meta", handle.String()+".json")
}

func (s *LocalStore) saveMetadata(info *DocumentInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(info.Handle), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
