// Package storage holds product images in an object store. MinIO and Google
// Cloud Storage backends are provided behind a common interface.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrUnsupportedImageType is returned for uploads outside the accepted set.
var ErrUnsupportedImageType = errors.New("unsupported image type")

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// ImageStore wraps an ObjectStorage backend with the product image API.
type ImageStore struct {
	backend ObjectStorage
}

// NewImageStore constructs an ImageStore for the provided backend.
func NewImageStore(backend ObjectStorage) *ImageStore {
	return &ImageStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// ImageKey derives the object key for a product image from its content and
// original filename. Content-addressed keys make re-uploads of identical
// images idempotent.
func ImageKey(productID int, filename string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := imageContentTypes[ext]; !ok {
		return "", ErrUnsupportedImageType
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("products/%d/%s%s", productID, hex.EncodeToString(sum[:]), ext), nil
}

// ContentType resolves the MIME type for an image object key.
func ContentType(key string) (string, error) {
	contentType, ok := imageContentTypes[strings.ToLower(path.Ext(key))]
	if !ok {
		return "", ErrUnsupportedImageType
	}
	return contentType, nil
}

// PutImage uploads a product image under its derived key and returns the key.
func (s *ImageStore) PutImage(ctx context.Context, productID int, filename string, data []byte) (string, error) {
	key, err := ImageKey(productID, filename, data)
	if err != nil {
		return "", err
	}
	contentType, err := ContentType(key)
	if err != nil {
		return "", err
	}
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// GetImage opens a reader for a stored product image.
func (s *ImageStore) GetImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	contentType, err := ContentType(key)
	if err != nil {
		return nil, "", err
	}
	reader, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return reader, contentType, nil
}

// DeleteImage removes a stored product image.
func (s *ImageStore) DeleteImage(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *ImageStore) Bucket() string {
	return s.backend.Bucket()
}
