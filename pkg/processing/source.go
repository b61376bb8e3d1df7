package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/leaf-doctor/internal/httpc"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// CaptureFilename is the artifact name used for camera snapshots.
const CaptureFilename = "camera-capture.jpg"

// Source is anything the pipeline can turn into a bitmap.
type Source interface {
	// Name is used to derive the artifact filename.
	Name() string
	// Decode returns the source as a drawable image.
	Decode(ctx context.Context) (image.Image, error)
}

// ByteSource is an encoded image supplied by the user (file, upload, download).
type ByteSource struct {
	name string
	data []byte
}

// FromBytes wraps encoded image bytes.
func FromBytes(name string, data []byte) *ByteSource {
	return &ByteSource{name: name, data: data}
}

// FromFile reads an image file from disk.
func FromFile(path string) (*ByteSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return FromBytes(filepath.Base(path), data), nil
}

// FromURL downloads an image over http or https.
func FromURL(ctx context.Context, imageURL string) (*ByteSource, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Leaf-Doctor/1.0")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	return FromBytes(name, data), nil
}

// Name returns the original file name.
func (s *ByteSource) Name() string { return s.name }

// Bytes returns the encoded content as supplied.
func (s *ByteSource) Bytes() []byte { return s.data }

// Decode decodes the bytes, honouring EXIF orientation.
func (s *ByteSource) Decode(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return decodeImageFromBytes(s.data)
}

// FrameSource is a frame that is already decoded.
type FrameSource struct {
	frame types.RawFrame
}

// FromFrame wraps a camera snapshot.
func FromFrame(frame types.RawFrame) FrameSource {
	return FrameSource{frame: frame}
}

// Name returns the fixed capture file name.
func (s FrameSource) Name() string { return CaptureFilename }

// Decode returns the frame bitmap without any work.
func (s FrameSource) Decode(context.Context) (image.Image, error) {
	if s.frame.Image == nil || s.frame.Image.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	return s.frame.Image, nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image: empty input")
	}

	// Registered decoders (jpeg, png, gif, bmp, tiff, webp)
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	// Fallback: libwebp for the variants x/image/webp does not handle
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Dimensions returns the declared size of an encoded image without decoding pixels.
func Dimensions(data []byte) (int, int, error) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	return 0, 0, fmt.Errorf("image: unknown or unsupported format")
}
