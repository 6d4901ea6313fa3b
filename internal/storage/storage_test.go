package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"facefeed/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	ok := map[string]string{
		"u1/abc.jpg":  "u1/abc.jpg",
		"/u1/abc.jpg": "u1/abc.jpg",
	}
	for in, want := range ok {
		got, err := cleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "..", "../etc/passwd", "u1/../../x", "u1//a", `u1\a`, "u1/./a"} {
		_, err := cleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8375/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "u1/a.jpg", strings.NewReader("jpeg"), 4, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8375/uploads/u1/a.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "u1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = s.Put(ctx, "u1/b.webp", strings.NewReader("webp!"), 5, "image/webp")
	require.NoError(t, err)
	_, err = s.Put(ctx, "u2/c.jpg", strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)

	objs, err := s.List(ctx, "u1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "u1/a.jpg", objs[0].Key)
	assert.Equal(t, int64(5), objs[1].Size)

	key, ok := s.KeyFromURL(url)
	assert.True(t, ok)
	assert.Equal(t, "u1/a.jpg", key)
	_, ok = s.KeyFromURL("https://youtube.com/watch?v=1")
	assert.False(t, ok)
	_, ok = s.KeyFromURL("http://localhost:8375/other/u1/a.jpg")
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "u1/a.jpg"))
	require.NoError(t, s.Delete(ctx, "u1/a.jpg"), "deleting twice is fine")
	objs, err = s.List(ctx, "u1/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	_, err = s.Put(ctx, "../escape", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// fakeS3 serves the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/media/")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>media</Name>`)
		n := 0
		for k, v := range f.objects {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			n++
			fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2026-01-02T03:04:05.000Z</LastModified><Size>%d</Size></Contents>`, k, len(v))
		}
		fmt.Fprintf(&b, `<KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated></ListBucketResult>`, n)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, b.String())
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewS3Store(S3Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "media",
		PublicURL: "https://cdn.example.com",
	})
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "u1/a.jpg", strings.NewReader("jpeg"), 4, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/u1/a.jpg", url)
	assert.Equal(t, "jpeg", fake.objects["u1/a.jpg"])
	assert.Equal(t, "image/jpeg", fake.types["u1/a.jpg"])

	objs, err := s.List(ctx, "u1/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(4), objs[0].Size)
	assert.Equal(t, "https://cdn.example.com/u1/a.jpg", objs[0].URL)

	key, ok := s.KeyFromURL(url)
	require.True(t, ok)
	require.NoError(t, s.Delete(ctx, key))
	assert.Empty(t, fake.objects)
}

func TestNew(t *testing.T) {
	s, err := New(&config.Config{BlobDriver: "local", BlobLocalDir: t.TempDir(), BlobPublicURL: "http://x/uploads"})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(&config.Config{BlobDriver: "ftp"})
	assert.Error(t, err)
}
