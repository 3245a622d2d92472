// Package storage reads and writes uploaded vendor order files.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// FileStore is implemented by LocalStore and MinioStore.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImportKey builds a unique object key for an uploaded file.
func ImportKey(now time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.xlsx"
	}
	return fmt.Sprintf("imports/%s/%s-%s", now.UTC().Format("2006/01/02"), uuid.NewString(), base)
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", shared.NewValidationError("storage_path", "required")
	}
	return key, nil
}
