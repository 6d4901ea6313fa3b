package media

import (
	"bytes"
	"image"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"facefeed/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxDimension = 2048
	JPEGQuality  = 82
	WebPQuality  = 70
)

type normalized struct {
	jpeg, webp    []byte
	width, height int
}

// normalizeImage decodes an upload, fits it in MaxDimension and re-encodes it
// as JPEG and WebP. Re-encoding drops EXIF and other metadata.
func normalizeImage(content []byte, providedType string) (*normalized, error) {
	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	source := decodedFormatToMime(format)
	if source == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(providedType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, source) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	fitted := resizeToFit(decoded, MaxDimension, MaxDimension)
	jpg, err := encodeJPEG(fitted, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	wp, err := encodeWebP(fitted, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	b := fitted.Bounds()
	return &normalized{jpeg: jpg, webp: wp, width: b.Dx(), height: b.Dy()}, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(math.Round(float64(w)*scale)), 1)
	newH := max(int(math.Round(float64(h)*scale)), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func isMatchingContentType(provided, detected string) bool {
	if provided == detected {
		return true
	}
	return (provided == "image/jpg" && detected == "image/jpeg") || (provided == "image/jpeg" && detected == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
