// Package storage stores uploaded media in a blob store: an S3-compatible
// bucket in production, a local directory in development.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"facefeed/internal/config"
)

var ErrInvalidKey = errors.New("invalid object key")

// Object describes one stored blob.
type Object struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Store is a flat key/value blob store with public URLs.
type Store interface {
	// Put writes body under key and returns its public URL.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	URL(key string) string
	// KeyFromURL maps a public URL back to its key. It reports false for
	// URLs outside the store.
	KeyFromURL(rawURL string) (string, bool)
}

// New builds the store selected by BLOB_DRIVER.
func New(cfg *config.Config) (Store, error) {
	switch cfg.BlobDriver {
	case "s3":
		return NewS3Store(S3Config{
			Endpoint:  cfg.BlobEndpoint,
			Region:    cfg.BlobRegion,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			PublicURL: cfg.BlobPublicURL,
		})
	case "local":
		return NewLocalStore(cfg.BlobLocalDir, cfg.BlobPublicURL)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

// cleanKey rejects keys that could escape the store's root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func keyFromURL(base, rawURL string) (string, bool) {
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.EqualFold(u.Host, b.Host) {
		return "", false
	}
	rest, ok := strings.CutPrefix(u.Path, b.Path+"/")
	if !ok {
		return "", false
	}
	key, err := cleanKey(rest)
	if err != nil {
		return "", false
	}
	return key, true
}
