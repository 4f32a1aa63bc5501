package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object names inside a model prefix
const (
	ModelObjectName  = "model.json"
	ScalerObjectName = "scaler.json"

	requestTimeout = 30 * time.Second
)

// Store is a Minio-backed model artifact store. Objects are keyed by
// YYYY-MM-DD/{currency}_{compare}/ so serving can pick up the newest
// publication for each pair by date.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to Minio and ensures the bucket exists
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &Store{client: client, bucket: bucket}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		log.Printf("Created model bucket %s", bucket)
	}

	return store, nil
}

// ModelKey returns the object key of a pair's model for a date
func ModelKey(date, pairSymbol string) string {
	return fmt.Sprintf("%s/%s/%s", date, pairSymbol, ModelObjectName)
}

// ScalerKey returns the object key of a pair's scaler for a date
func ScalerKey(date, pairSymbol string) string {
	return fmt.Sprintf("%s/%s/%s", date, pairSymbol, ScalerObjectName)
}

// Upload publishes model and scaler documents under the date prefix
func (s *Store) Upload(date, pairSymbol string, model, scaler []byte) error {
	if err := s.putObject(ModelKey(date, pairSymbol), model); err != nil {
		return err
	}
	return s.putObject(ScalerKey(date, pairSymbol), scaler)
}

func (s *Store) putObject(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download fetches a pair's model and scaler files into destDir, mirroring
// the bucket layout, and returns the local paths.
func (s *Store) Download(date, pairSymbol, destDir string) (modelPath, scalerPath string, err error) {
	dir := filepath.Join(destDir, pairSymbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create model directory: %w", err)
	}

	modelPath = filepath.Join(dir, ModelObjectName)
	scalerPath = filepath.Join(dir, ScalerObjectName)

	if err := s.getObject(ModelKey(date, pairSymbol), modelPath); err != nil {
		return "", "", err
	}
	if err := s.getObject(ScalerKey(date, pairSymbol), scalerPath); err != nil {
		return "", "", err
	}

	return modelPath, scalerPath, nil
}

func (s *Store) getObject(key, path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.client.FGetObject(ctx, s.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// ListModels returns the deduped pair names published under a date prefix
func (s *Store) ListModels(date string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	seen := make(map[string]bool)
	prefix := date + "/"

	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list models for %s: %w", date, object.Err)
		}
		parts := strings.Split(strings.TrimPrefix(object.Key, prefix), "/")
		if len(parts) >= 2 && parts[0] != "" {
			seen[parts[0]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}
