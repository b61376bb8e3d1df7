package leafdoctor

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/leaf-doctor/internal/config"
	"github.com/menta2k/leaf-doctor/pkg/capture/capturetest"
	"github.com/menta2k/leaf-doctor/pkg/controller"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/llamacpp"
	"github.com/menta2k/leaf-doctor/pkg/ollama"
	"github.com/menta2k/leaf-doctor/pkg/remote"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

type stubPredictor struct {
	diag *types.Diagnosis
	err  error
	got  types.Artifact
	lang string
}

func (s *stubPredictor) Predict(_ context.Context, a types.Artifact, lang string) (*types.Diagnosis, error) {
	s.got, s.lang = a, lang
	return s.diag, s.err
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, capturetest.Solid(w, h, color.NRGBA{G: 180, A: 255})))
	path := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestNew_Defaults(t *testing.T) {
	doc, err := New(config.Default())
	require.NoError(t, err)
	defer doc.Close()

	assert.IsType(t, &remote.Client{}, doc.Predictor)
	assert.NotNil(t, doc.Camera)
	assert.Equal(t, []string{"en", "hi", "mr"}, doc.Catalog.Languages())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Predictor.Backend = "carrier-pigeon"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewPredictor(t *testing.T) {
	p, err := NewPredictor(config.PredictorConfig{Backend: config.BackendOllama, URL: "http://localhost:11434", Model: "llava"})
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, p)

	p, err = NewPredictor(config.PredictorConfig{Backend: config.BackendLlamaCpp, URL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.IsType(t, &llamacpp.Client{}, p)

	p, err = NewPredictor(config.PredictorConfig{Backend: config.BackendRemote, URL: "ftp://nope"})
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestDiagnoseFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.OutputDir = filepath.Join(dir, "out")
	cfg.Output.SaveArtifact = true

	stub := &stubPredictor{diag: &types.Diagnosis{Class: "Tomato_healthy", Confidence: 0.93}}
	doc, err := New(cfg, WithPredictor(stub), WithPlatform(capturetest.NewPlatform()))
	require.NoError(t, err)
	defer doc.Close()

	report, err := doc.DiagnoseFile(context.Background(), writePNG(t, dir, 300, 200), "mr-IN")
	require.NoError(t, err)

	assert.Equal(t, "mr", stub.lang)
	assert.Equal(t, 256, stub.got.Width)
	assert.Equal(t, 300, report.Artifact.SourceWidth)
	require.NotNil(t, report.Result)
	assert.Equal(t, "93.00", report.Result.Confidence)
	assert.Equal(t, controller.BandConfident, report.Result.Band)

	require.NotEmpty(t, report.SavedTo)
	saved, err := os.ReadFile(report.SavedTo)
	require.NoError(t, err)
	assert.Equal(t, report.Artifact.Data, saved)
	assert.Equal(t, filepath.Join(cfg.Output.OutputDir, "leaf_256.jpg"), report.SavedTo)
}

func TestDiagnoseFile_Errors(t *testing.T) {
	stub := &stubPredictor{err: failure.NewTransport("predict", 502, errors.New("bad gateway"))}
	doc, err := New(config.Default(), WithPredictor(stub))
	require.NoError(t, err)
	defer doc.Close()

	_, err = doc.DiagnoseFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "en")
	assert.Error(t, err)

	_, err = doc.DiagnoseFile(context.Background(), writePNG(t, t.TempDir(), 8, 8), "en")
	assert.True(t, failure.Is(err, failure.TransportError))
}

func TestPing_Unsupported(t *testing.T) {
	doc, err := New(config.Default(), WithPredictor(&stubPredictor{}))
	require.NoError(t, err)
	_, err = doc.Ping(context.Background())
	assert.Error(t, err)
}

func TestNewController(t *testing.T) {
	cfg := config.Default()
	cfg.Locale.Language = "hi"
	doc, err := New(cfg, WithPredictor(&stubPredictor{}), WithPlatform(capturetest.NewPlatform()))
	require.NoError(t, err)

	ctrl, err := doc.NewController(nil, false)
	require.NoError(t, err)
	defer ctrl.Close()
	assert.Equal(t, "hi", ctrl.State().Language)

	devices, err := ctrl.RefreshDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
