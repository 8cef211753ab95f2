package storage

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"host only", "https://cdn.example.com", "pools/1/logo_1.png", "https://cdn.example.com/pools/1/logo_1.png"},
		{"trailing slash", "https://cdn.example.com/", "pools/1/logo_1.png", "https://cdn.example.com/pools/1/logo_1.png"},
		{"base path", "https://cdn.example.com/assets", "/pools/2/logo.webp", "https://cdn.example.com/assets/pools/2/logo.webp"},
		{"empty key", "https://cdn.example.com", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := url.Parse(tt.base)
			require.NoError(t, err)
			require.Equal(t, tt.want, publicURL(base, tt.key))
		})
	}
}

func TestNewR2UploaderValidatesConfig(t *testing.T) {
	_, err := NewR2Uploader(context.Background(), R2Config{AccountID: "acc"}, nil)
	require.Error(t, err)

	_, err = NewR2Uploader(context.Background(), R2Config{
		AccountID: "acc", AccessKeyID: "k", SecretAccessKey: "s", BucketName: "b", PublicBaseURL: "not a url",
	}, nil)
	require.Error(t, err)
}
