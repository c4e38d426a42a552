package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("backup object not found")

type ObjectInfo struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// BackupStore keeps backup payloads outside the database.
type BackupStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Kind() string
}
