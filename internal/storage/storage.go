// Package storage keeps uploaded blobs and hands out public references to them.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/store"
)

// Buckets.
const (
	BucketConditionPhotos = "condition-photos"
	BucketPersonPhotos    = "person-photos"
)

// Uploader stores a blob and returns the reference clients use to fetch it.
type Uploader interface {
	UploadFile(ctx context.Context, bucket, path string, data []byte) (string, error)
}

// DBStorage stores blobs in the files table and serves them at
// {baseURL}/files/{bucket}/{path}.
type DBStorage struct {
	db      *db.DB
	baseURL string
}

// NewDBStorage returns a DBStorage. baseURL may be empty for root-relative references.
func NewDBStorage(database *db.DB, baseURL string) *DBStorage {
	return &DBStorage{db: database, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *DBStorage) UploadFile(ctx context.Context, bucket, path string, data []byte) (string, error) {
	if err := validName(bucket); err != nil {
		return "", fmt.Errorf("bucket: %w", err)
	}
	if err := validPath(path); err != nil {
		return "", fmt.Errorf("path: %w", err)
	}
	if err := store.PutFile(ctx, s.db, bucket, path, data, http.DetectContentType(data)); err != nil {
		return "", err
	}
	return s.PublicRef(bucket, path), nil
}

// PublicRef returns the reference for a stored blob.
func (s *DBStorage) PublicRef(bucket, path string) string {
	return s.baseURL + "/files/" + bucket + "/" + path
}

// Open returns a stored blob, or nil when there is none.
func (s *DBStorage) Open(ctx context.Context, bucket, path string) (*store.File, error) {
	return store.GetFile(ctx, s.db, bucket, path)
}

func validName(s string) error {
	if s == "" || strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return fmt.Errorf("invalid name %q", s)
	}
	return nil
}

func validPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") {
		return fmt.Errorf("invalid path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if err := validName(seg); err != nil {
			return err
		}
	}
	return nil
}
