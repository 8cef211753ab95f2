package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

type r2Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL *url.URL
	logger        *slog.Logger
}

func NewR2Uploader(ctx context.Context, cfg R2Config, logger *slog.Logger) (FileUploader, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" || cfg.PublicBaseURL == "" {
		return nil, errors.New("invalid R2 configuration: all fields are required")
	}

	base, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid R2 public base url %q", cfg.PublicBaseURL)
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &r2Uploader{
		client:        client,
		bucket:        cfg.BucketName,
		publicBaseURL: base,
		logger:        logger.With(slog.String("component", "r2")),
	}, nil
}

func (u *r2Uploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object to R2 (key: %s): %w", key, err)
	}

	etag := ""
	if out.ETag != nil {
		// ETag приходит в кавычках
		etag = strings.Trim(*out.ETag, "\"")
	}
	u.logger.DebugContext(ctx, "Object uploaded", slog.String("key", key), slog.String("etag", etag))

	return &UploadResult{
		Key:      key,
		Location: u.GetPublicURL(key),
		ETag:     etag,
	}, nil
}

func (u *r2Uploader) Delete(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from R2 (key: %s): %w", key, err)
	}
	return nil
}

func (u *r2Uploader) GetPublicURL(key string) string {
	return publicURL(u.publicBaseURL, key)
}

func publicURL(base *url.URL, key string) string {
	key = strings.TrimLeft(key, "/")
	if base == nil || key == "" {
		return ""
	}
	joined := *base
	joined.Path = strings.TrimRight(base.Path, "/") + "/" + key
	joined.RawPath = ""
	return joined.String()
}
