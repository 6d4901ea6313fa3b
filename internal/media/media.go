// Package media normalizes uploads and stores them in the blob store under
// content-addressed keys.
package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"

	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/observability"
	"facefeed/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultMaxVideoBytes = 100 << 20
	MaxImageBytes        = 20 << 20
)

var videoTypes = []string{"video/mp4", "video/webm", "video/quicktime"}

type UploadInput struct {
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
}

// Upload is a stored media file. Images also get a WebP rendition.
type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	WebPURL     string `json:"webpUrl,omitempty"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type Service struct {
	store         storage.Store
	maxVideoBytes int64
}

// NewService returns a media Service. maxVideoMB <= 0 uses the default.
func NewService(store storage.Store, maxVideoMB int) *Service {
	maxVideo := int64(DefaultMaxVideoBytes)
	if maxVideoMB > 0 {
		maxVideo = int64(maxVideoMB) << 20
	}
	return &Service{store: store, maxVideoBytes: maxVideo}
}

func (s *Service) Upload(ctx context.Context, in UploadInput) (up *Upload, err error) {
	span, ctx := observability.StartSpan(ctx, "MediaService.Upload", attribute.Int("media.size", len(in.Content)))
	defer func() { span.End(err) }()

	if in.UserID == "" {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}

	detected := normalizeContentType(http.DetectContentType(in.Content))
	provided := normalizeContentType(in.ContentType)
	switch {
	case isAllowedImageMIME(detected):
		up, err = s.uploadImage(ctx, in)
		observeUpload("image", err)
	case slices.Contains(videoTypes, detected), detected == "application/octet-stream" && provided == "video/quicktime":
		if detected == "application/octet-stream" {
			detected = provided
		}
		up, err = s.uploadVideo(ctx, in, detected)
		observeUpload("video", err)
	default:
		observability.MediaUploads.WithLabelValues("unknown", "rejected").Inc()
		return nil, models.NewValidationError("Unsupported media type")
	}
	return up, err
}

func (s *Service) uploadImage(ctx context.Context, in UploadInput) (*Upload, error) {
	if len(in.Content) > MaxImageBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", MaxImageBytes>>20))
	}
	img, err := normalizeImage(in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}

	base := contentKey(in.UserID, img.jpeg)
	jpgURL, err := s.store.Put(ctx, base+".jpg", bytes.NewReader(img.jpeg), int64(len(img.jpeg)), "image/jpeg")
	if err != nil {
		return nil, models.NewUnavailableError("Media storage unavailable", err)
	}
	webpURL, err := s.store.Put(ctx, base+".webp", bytes.NewReader(img.webp), int64(len(img.webp)), "image/webp")
	if err != nil {
		s.cleanup(ctx, base+".jpg")
		return nil, models.NewUnavailableError("Media storage unavailable", err)
	}
	return &Upload{
		Key:         base + ".jpg",
		URL:         jpgURL,
		WebPURL:     webpURL,
		ContentType: "image/jpeg",
		Size:        int64(len(img.jpeg)),
		Width:       img.width,
		Height:      img.height,
	}, nil
}

func (s *Service) uploadVideo(ctx context.Context, in UploadInput, contentType string) (*Upload, error) {
	if int64(len(in.Content)) > s.maxVideoBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxVideoBytes>>20))
	}
	key := contentKey(in.UserID, in.Content) + videoExt(contentType)
	url, err := s.store.Put(ctx, key, bytes.NewReader(in.Content), int64(len(in.Content)), contentType)
	if err != nil {
		return nil, models.NewUnavailableError("Media storage unavailable", err)
	}
	return &Upload{Key: key, URL: url, ContentType: contentType, Size: int64(len(in.Content))}, nil
}

// List returns the caller's uploads.
func (s *Service) List(ctx context.Context, userID string) ([]storage.Object, error) {
	if userID == "" {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	objs, err := s.store.List(ctx, userID+"/")
	if err != nil {
		return nil, models.NewUnavailableError("Media storage unavailable", err)
	}
	return objs, nil
}

// Delete removes one of the caller's uploads, with its WebP rendition.
func (s *Service) Delete(ctx context.Context, userID, key string) error {
	if userID == "" {
		return models.NewUnauthorizedError("Authentication required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return models.NewValidationError("key is required")
	}
	if !strings.HasPrefix(key, userID+"/") {
		return models.NewForbiddenError("You can only delete your own media")
	}
	return s.deleteKey(ctx, key)
}

// DeleteURL removes the blob behind a public URL when ownerID uploaded it.
// URLs outside the store or under another user's prefix are ignored.
func (s *Service) DeleteURL(ctx context.Context, ownerID, rawURL string) error {
	key, ok := s.store.KeyFromURL(rawURL)
	if !ok || ownerID == "" || !strings.HasPrefix(key, ownerID+"/") {
		return nil
	}
	return s.deleteKey(ctx, key)
}

func (s *Service) deleteKey(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			return models.NewValidationError("Invalid media key")
		}
		return models.NewUnavailableError("Media storage unavailable", err)
	}
	if base, ok := strings.CutSuffix(key, ".jpg"); ok {
		s.cleanup(ctx, base+".webp")
	}
	return nil
}

func (s *Service) cleanup(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to delete media",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// contentKey is <userID>/<blake2b-256 of content>, without extension.
func contentKey(userID string, content []byte) string {
	sum := blake2b.Sum256(content)
	return userID + "/" + hex.EncodeToString(sum[:])
}

func videoExt(contentType string) string {
	switch contentType {
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".mp4"
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func observeUpload(kind string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case models.HasCode(err, models.CodeValidation):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	observability.MediaUploads.WithLabelValues(kind, outcome).Inc()
}
