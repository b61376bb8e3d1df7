package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Model input parameters. Fixed for every artifact.
const (
	TargetSize  = 256
	JPEGQuality = 95
)

// Processor turns source images into classifier artifacts.
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Normalize decodes src, stretches it to TargetSize x TargetSize and encodes it as JPEG.
// The resize ignores the source aspect ratio.
func (p *Processor) Normalize(ctx context.Context, src Source) (types.Artifact, error) {
	img, err := src.Decode(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Artifact{}, err
		}
		return types.Artifact{}, failure.New(failure.DecodeError, "normalize", err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return types.Artifact{}, failure.Newf(failure.DecodeError, "normalize", "image has no pixels")
	}
	if err := ctx.Err(); err != nil {
		return types.Artifact{}, err
	}

	data, err := p.EncodeJPEG(p.Stretch(img))
	if err != nil {
		return types.Artifact{}, err
	}

	return types.Artifact{
		Data:         data,
		Filename:     artifactName(src.Name()),
		ContentType:  "image/jpeg",
		Width:        TargetSize,
		Height:       TargetSize,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}, nil
}

// Stretch scales img to the model input size without preserving aspect ratio.
func (p *Processor) Stretch(img image.Image) *image.NRGBA {
	return imaging.Resize(img, TargetSize, TargetSize, imaging.Lanczos)
}

// EncodeJPEG encodes img at the artifact quality.
func (p *Processor) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, failure.New(failure.EncodeError, "encode", err)
	}
	if buf.Len() == 0 {
		return nil, failure.Newf(failure.EncodeError, "encode", "encoder produced no output")
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg", "":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func artifactName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		return CaptureFilename
	}
	return base + ".jpg"
}
