// Package snapshot reads and publishes catalog snapshots in S3-compatible
// object storage. A published snapshot is a single JSON or YAML product file
// that any number of servers can load and periodically refresh.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/config"
	"github.com/hyperengineering/shopfilter/internal/types"
)

// ErrNotConfigured is returned when no bucket is configured.
var ErrNotConfigured = errors.New("object storage not configured")

// ErrObjectNotFound is returned when the catalog object does not exist.
var ErrObjectNotFound = errors.New("catalog object not found")

// s3Client defines the minimal minio.Client operations used by S3Source.
type s3Client interface {
	GetObject(ctx context.Context, bucket, objectName string) ([]byte, error)
	PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error
}

// minioClientWrapper adapts *minio.Client to s3Client.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, objectName string) ([]byte, error) {
	obj, err := w.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	defer obj.Close()

	// minio defers the request until the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioError(err)
	}
	return data, nil
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func mapMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	default:
		return err
	}
}

// S3Source is a catalog.Source backed by one object in a bucket.
type S3Source struct {
	client s3Client
	bucket string
	key    string
}

var _ catalog.Source = (*S3Source)(nil)

// NewS3Source creates a source for the configured catalog object.
// UseSSL defaults to true when unset.
func NewS3Source(cfg config.ObjectStoreConfig) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Source{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		key:    cfg.Key,
	}, nil
}

// Name returns the object URL, s3://bucket/key.
func (s *S3Source) Name() string {
	return "s3://" + s.bucket + "/" + s.key
}

// Load downloads and decodes the catalog object. The object key's extension
// selects the format the same way it does for catalog files.
func (s *S3Source) Load(ctx context.Context) ([]types.Product, error) {
	data, err := s.client.GetObject(ctx, s.bucket, s.key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", s.Name(), err)
	}
	products, err := catalog.DecodeProducts(data, path.Ext(s.key))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Name(), err)
	}
	return products, nil
}

// Publish validates products and uploads them as the catalog object,
// replacing whatever was there.
func (s *S3Source) Publish(ctx context.Context, products []types.Product) error {
	if err := catalog.ValidateProducts(products); err != nil {
		return err
	}
	data, contentType, err := encodeProducts(products, path.Ext(s.key))
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, s.bucket, s.key, data, contentType); err != nil {
		return fmt.Errorf("upload %s: %w", s.Name(), err)
	}
	return nil
}

type productDocument struct {
	Products []types.Product `json:"products" yaml:"products"`
}

func encodeProducts(products []types.Product, ext string) ([]byte, string, error) {
	doc := productDocument{Products: products}
	if doc.Products == nil {
		doc.Products = []types.Product{}
	}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, "", fmt.Errorf("encode catalog: %w", err)
		}
		return data, "application/yaml", nil
	default:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encode catalog: %w", err)
		}
		return data, "application/json", nil
	}
}
