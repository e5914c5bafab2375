// Package imagestore uploads product images to MinIO.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sakashimaa/marketplace/pkg/config"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/pkg/utils"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

type minioPutter struct {
	client *minio.Client
}

func (m minioPutter) PutObject(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

type Store struct {
	putter  objectPutter
	bucket  string
	baseURL string
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewMinioStore connects to MinIO and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.MinIO, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("bucket created", zap.String("bucket", cfg.Bucket))
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return newStore(minioPutter{client: client}, cfg.Bucket, baseURL, logger), nil
}

func newStore(putter objectPutter, bucket, baseURL string, logger *zap.Logger) *Store {
	return &Store{
		putter:  putter,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		cb:      utils.NewBreaker("ImageStore", logger),
		tracer:  otel.Tracer("catalog/imagestore"),
		logger:  logger,
	}
}

// Upload stores files as <entityType>/<entityID>/<field>_<n><ext>, numbering from startOrder,
// and returns the public URLs joined with the image separator.
func (s *Store) Upload(
	ctx context.Context,
	files []domain.ImageFile,
	entityType, entityID, field string,
	startOrder int,
) (string, error) {
	if len(files) == 0 {
		return "", nil
	}

	ctx, span := s.tracer.Start(ctx, "ImageStore.Upload")
	defer span.End()

	span.SetAttributes(
		attribute.String("entity_id", entityID),
		attribute.Int("files", len(files)),
		attribute.Int("start_order", startOrder),
	)

	urls := make([]string, 0, len(files))
	for i, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(f.Data)
		}

		object := path.Join(
			strings.ToLower(entityType),
			entityID,
			fmt.Sprintf("%s_%d%s", strings.ToLower(field), startOrder+i, extension(f.Name, contentType)),
		)

		_, err := utils.ExecuteWithBreaker(s.cb, func() (struct{}, error) {
			return struct{}{}, s.putter.PutObject(ctx, s.bucket, object, f.Data, contentType)
		})
		if err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, s.logger, "Image upload failed", zap.String("object", object), zap.Error(err))

			return "", fmt.Errorf("upload %s: %w", object, err)
		}

		urls = append(urls, fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, object))
	}

	return domain.JoinImages(urls), nil
}

func extension(name, contentType string) string {
	if ext := path.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
