// Package leafdoctor diagnoses plant leaf diseases from photos.
//
// A photo comes either from a file, a URL or a live camera. It is normalized
// to the classifier's fixed input (256x256 JPEG, stretched), sent to a
// prediction backend, and the diagnosis is rendered in English, Hindi or
// Marathi.
//
// Basic usage:
//
//	doc, err := leafdoctor.New(config.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer doc.Close()
//
//	report, err := doc.DiagnoseFile(ctx, "leaf.jpg", "hi")
//	if err != nil {
//		log.Fatal(doc.Catalog.Message("hi", err))
//	}
//	fmt.Println(report.Result.Disease, report.Result.Confidence)
//
// The package wires these components together:
//
//   - capture: camera enumeration and sessions (real cameras with -tags gocv)
//   - processing: decoding and normalization
//   - remote, ollama, llamacpp: prediction backends
//   - i18n: localized strings and disease names
//   - preview: revocable preview handles
//   - controller: the stateful screen model used by interactive front ends
package leafdoctor

import (
	"context"
	"fmt"
	"os"

	"github.com/menta2k/leaf-doctor/internal/config"
	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/internal/utils"
	"github.com/menta2k/leaf-doctor/pkg/capture"
	"github.com/menta2k/leaf-doctor/pkg/client"
	"github.com/menta2k/leaf-doctor/pkg/controller"
	"github.com/menta2k/leaf-doctor/pkg/i18n"
	"github.com/menta2k/leaf-doctor/pkg/llamacpp"
	"github.com/menta2k/leaf-doctor/pkg/ollama"
	"github.com/menta2k/leaf-doctor/pkg/preview"
	"github.com/menta2k/leaf-doctor/pkg/processing"
	"github.com/menta2k/leaf-doctor/pkg/remote"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Version of the leaf doctor library
const Version = "1.0.0"

// Doctor bundles the configured components.
type Doctor struct {
	Config    *config.Config
	Camera    *capture.Manager
	Processor *processing.Processor
	Predictor client.Predictor
	Catalog   *i18n.Catalog
	Previews  *preview.Store
}

// Report is the outcome of diagnosing one photo.
type Report struct {
	Source    string             `json:"source"`
	Artifact  types.Artifact     `json:"artifact"`
	Diagnosis *types.Diagnosis   `json:"diagnosis"`
	Result    *controller.Result `json:"result"`
	SavedTo   string             `json:"saved_to,omitempty"`
}

type options struct {
	platform  capture.Platform
	predictor client.Predictor
}

// Option overrides a component chosen from the configuration.
type Option func(*options)

// WithPlatform uses p instead of the default camera platform.
func WithPlatform(p capture.Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithPredictor uses p instead of the configured backend.
func WithPredictor(p client.Predictor) Option {
	return func(o *options) { o.predictor = p }
}

// New builds a Doctor from cfg.
func New(cfg *config.Config, opts ...Option) (*Doctor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.platform == nil {
		o.platform = capture.DefaultPlatform(capture.PlatformConfig{MaxProbe: cfg.Camera.MaxProbe})
	}
	if o.predictor == nil {
		p, err := NewPredictor(cfg.Predictor)
		if err != nil {
			return nil, err
		}
		o.predictor = p
	}

	return &Doctor{
		Config: cfg,
		Camera: capture.NewManager(o.platform,
			capture.WithIdealResolution(cfg.Camera.IdealWidth, cfg.Camera.IdealHeight),
			capture.WithReadyTimeout(cfg.Camera.ReadyTimeout())),
		Processor: processing.NewProcessor(),
		Predictor: o.predictor,
		Catalog:   i18n.Default(),
		Previews:  preview.NewStore(),
	}, nil
}

// NewPredictor creates the backend named in cfg.
func NewPredictor(cfg config.PredictorConfig) (client.Predictor, error) {
	var (
		p   client.Predictor
		err error
	)
	switch cfg.Backend {
	case config.BackendRemote:
		p, err = remote.NewClient(cfg.URL, cfg.Timeout())
	case config.BackendOllama:
		p, err = ollama.NewClient(cfg.URL, cfg.Model, cfg.Timeout())
	case config.BackendLlamaCpp:
		p, err = llamacpp.NewClient(cfg.URL, cfg.Model, cfg.Timeout())
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s predictor: %w", cfg.Backend, err)
	}
	return p, nil
}

// NewController creates a screen controller over the Doctor's components.
func (d *Doctor) NewController(n controller.Notifier, autoSubmit bool) (*controller.Controller, error) {
	return controller.New(controller.Deps{
		Camera:     d.Camera,
		Processor:  d.Processor,
		Predictor:  d.Predictor,
		Catalog:    d.Catalog,
		Previews:   d.Previews,
		Notifier:   n,
		Language:   d.Config.Locale.Language,
		AutoSubmit: autoSubmit,
	})
}

// Diagnose normalizes src and asks the predictor about it.
func (d *Doctor) Diagnose(ctx context.Context, src processing.Source, lang string) (*Report, error) {
	lang = d.Catalog.Resolve(lang)

	artifact, err := d.Processor.Normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	diag, err := d.Predictor.Predict(ctx, artifact, lang)
	if err != nil {
		return nil, err
	}

	view := controller.Render(d.Catalog, controller.State{Language: lang, Diagnosis: diag})
	report := &Report{
		Source:    src.Name(),
		Artifact:  artifact,
		Diagnosis: diag,
		Result:    view.Result,
	}

	if d.Config.Output.SaveArtifact {
		path, err := d.SaveArtifact(artifact, src.Name())
		if err != nil {
			log.Warn("failed to save artifact", "source", src.Name(), "error", err)
		} else {
			report.SavedTo = path
		}
	}
	return report, nil
}

// DiagnoseFile diagnoses an image file.
func (d *Doctor) DiagnoseFile(ctx context.Context, path, lang string) (*Report, error) {
	src, err := processing.FromFile(path)
	if err != nil {
		return nil, err
	}
	return d.Diagnose(ctx, src, lang)
}

// DiagnoseURL downloads and diagnoses an image.
func (d *Doctor) DiagnoseURL(ctx context.Context, imageURL, lang string) (*Report, error) {
	src, err := processing.FromURL(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return d.Diagnose(ctx, src, lang)
}

// SaveArtifact writes the artifact bytes into the output directory.
func (d *Doctor) SaveArtifact(a types.Artifact, source string) (string, error) {
	out := d.Config.Output
	if err := utils.EnsureDir(out.OutputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := utils.GenerateOutputFilename(source, out.OutputDir, out.Prefix, out.Suffix, "jpg")
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	log.Debug("artifact saved", "path", path, "size", utils.FormatFileSize(int64(len(a.Data))))
	return path, nil
}

// Ping checks the backend if it supports liveness checks.
func (d *Doctor) Ping(ctx context.Context) (string, error) {
	p, ok := d.Predictor.(client.Pinger)
	if !ok {
		return "", fmt.Errorf("backend %s does not support ping", d.Config.Predictor.Backend)
	}
	return p.Ping(ctx)
}

// Describe normalizes the image at path and asks a vision backend to
// describe it.
func (d *Doctor) Describe(ctx context.Context, path string) (string, error) {
	desc, ok := d.Predictor.(client.Describer)
	if !ok {
		return "", fmt.Errorf("backend %s cannot describe images", d.Config.Predictor.Backend)
	}
	src, err := processing.FromFile(path)
	if err != nil {
		return "", err
	}
	artifact, err := d.Processor.Normalize(ctx, src)
	if err != nil {
		return "", err
	}
	return desc.Describe(ctx, artifact)
}

// Close releases the camera.
func (d *Doctor) Close() {
	d.Camera.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
