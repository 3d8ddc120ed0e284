package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/pujcovna/internal/db"
)

// File is a stored blob.
type File struct {
	Bucket    string
	Path      string
	Data      []byte
	MIME      string
	CreatedAt time.Time
}

// PutFile stores a blob, replacing any existing blob at the same path.
func PutFile(ctx context.Context, q db.Querier, bucket, path string, data []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO files (bucket, path, data, mime, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, path) DO UPDATE SET data = excluded.data, mime = excluded.mime`,
		bucket, path, data, mime, now(),
	)
	if err != nil {
		return fmt.Errorf("storing file: %w", err)
	}
	return nil
}

// GetFile returns a stored blob, or nil if there is none.
func GetFile(ctx context.Context, q db.Querier, bucket, path string) (*File, error) {
	f := &File{Bucket: bucket, Path: path}
	err := q.QueryRowContext(ctx,
		`SELECT data, mime, created_at FROM files WHERE bucket = ? AND path = ?`, bucket, path,
	).Scan(&f.Data, &f.MIME, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return f, nil
}
