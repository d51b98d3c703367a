package bitmap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
)

// DefaultMaxBytes bounds the size of a fetched or read source image.
const DefaultMaxBytes = 10 << 20

// DefaultMaxPixels bounds the decoded canvas of a source image.
const DefaultMaxPixels = 25_000_000

// Loader resolves an image source and decodes it into a Width x Height bitmap.
// MaxPixels bounds the width*height declared in the image header.
type Loader struct {
	Width     int
	Height    int
	MaxBytes  int64
	MaxPixels int64
	Client    *http.Client
	// Scaler resamples the decoded image to Width x Height.
	Scaler draw.Scaler
}

// NewLoader creates a Loader producing width x height bitmaps with bilinear scaling.
func NewLoader(width, height int) *Loader {
	return &Loader{
		Width:     width,
		Height:    height,
		MaxBytes:  DefaultMaxBytes,
		MaxPixels: DefaultMaxPixels,
		Client:    &http.Client{Timeout: 30 * time.Second},
		Scaler:    draw.BiLinear,
	}
}

// Load reads source, which may be a data: URL, an http(s) URL or a file path.
func (l *Loader) Load(ctx context.Context, source string) (*Bitmap, error) {
	if source == "" {
		return nil, apperr.NewImageDecodeError(nil, "empty image source")
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(source, "data:"):
		data, err = parseDataURL(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err = l.fetch(ctx, source)
	default:
		data, err = l.readFile(source)
	}
	if err != nil {
		return nil, apperr.NewImageDecodeError(err, "failed to load image: %s", describeSource(source))
	}
	return l.DecodeBytes(data)
}

// DecodeBytes decodes an encoded image (PNG, JPEG, GIF, BMP or WebP) and scales it.
func (l *Loader) DecodeBytes(data []byte) (*Bitmap, error) {
	if len(data) == 0 {
		return nil, apperr.NewImageDecodeError(nil, "empty image data")
	}
	if l.MaxBytes > 0 && int64(len(data)) > l.MaxBytes {
		return nil, apperr.NewImageDecodeError(nil, "image is %d bytes, limit is %d", len(data), l.MaxBytes)
	}
	// The header is checked before decoding so a small file cannot declare a huge canvas.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.NewImageDecodeError(err, "failed to decode image")
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); l.MaxPixels > 0 && pixels > l.MaxPixels {
		return nil, apperr.NewImageDecodeError(nil, "image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, l.MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.NewImageDecodeError(err, "failed to decode image")
	}
	if img.Bounds().Empty() {
		return nil, apperr.NewImageDecodeError(nil, "decoded %s image is empty", format)
	}
	return l.scale(img), nil
}

// scale draws img over the whole Width x Height canvas.
func (l *Loader) scale(img image.Image) *Bitmap {
	dst := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	scaler := l.Scaler
	if scaler == nil {
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return &Bitmap{Width: l.Width, Height: l.Height, Pix: dst.Pix}
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	if l.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", l.MaxBytes)
	}
	return data, nil
}

// parseDataURL extracts the payload of an RFC 2397 data URL.
func parseDataURL(s string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URL: missing comma")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("malformed data URL payload: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URL payload: %w", err)
	}
	return []byte(data), nil
}

// describeSource keeps data URLs out of error messages.
func describeSource(s string) string {
	if strings.HasPrefix(s, "data:") {
		meta, _, _ := strings.Cut(s, ",")
		return meta + ",..."
	}
	return s
}
