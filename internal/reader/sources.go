package reader

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	// Decoders for the page image formats encountered in the wild.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
)

// maxImageBytes caps a single fetched image.
const maxImageBytes = 32 << 20

// ImageSource fetches page images over HTTP or from data URLs and
// decodes them for the pipeline.
type ImageSource struct {
	client *http.Client
}

// NewImageSource creates a source with a bounded-timeout client.
func NewImageSource(timeout time.Duration) *ImageSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageSource{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and decodes the image at url. The returned ImageRef
// carries the raw bytes for content-hash cache keying; when the bytes
// cannot be read the ref falls back to keying by URL.
func (s *ImageSource) Fetch(ctx context.Context, url string) (image.Image, pipeline.ImageRef, error) {
	data, err := s.fetchBytes(ctx, url)
	if err != nil {
		return nil, pipeline.ImageRef{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pipeline.ImageRef{}, fmt.Errorf("decode image %q: %w", url, err)
	}
	return img, pipeline.ImageRef{URL: url, Bytes: data}, nil
}

func (s *ImageSource) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %q: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image %q: %w", url, err)
	}
	return data, nil
}

func decodeDataURL(url string) ([]byte, error) {
	comma := strings.IndexByte(url, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta, payload := url[:comma], url[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URL: %w", err)
		}
		return data, nil
	}
	return []byte(payload), nil
}
