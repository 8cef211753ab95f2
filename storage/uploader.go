package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader хранит пользовательские файлы (логотипы пулов) во внешнем объектном хранилище.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	// GetPublicURL возвращает пустую строку, если URL собрать нельзя.
	GetPublicURL(key string) string
}
