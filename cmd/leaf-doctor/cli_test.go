package main

import (
	"bytes"
	"encoding/json"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/leaf-doctor/pkg/capture/capturetest"
	"github.com/menta2k/leaf-doctor/pkg/controller"
)

// run executes the CLI with an isolated HOME and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	app := newCLIApp(&out)
	err := app.Run(append([]string{"leaf-doctor", "--log-level", "error"}, args...))
	return out.String(), err
}

func predictServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var langs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			_, _ = io.WriteString(w, `"Hello, I am alive"`)
		case "/predict":
			langs = append(langs, r.URL.Query().Get("lang"))
			if _, _, err := r.FormFile("file"); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"class":"Pepper__bell___Bacterial_spot","confidence":0.42,"cause":["Xanthomonas bacteria"],"precaution":[],"cure":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &langs
}

func writeLeaf(t *testing.T, dir, name string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, capturetest.Solid(120, 80, color.NRGBA{G: 200, A: 255})))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestLanguagesCommand(t *testing.T) {
	out, err := run(t, "--lang", "hi", "languages")
	require.NoError(t, err)

	var langs []controller.Option
	require.NoError(t, json.Unmarshal([]byte(out), &langs))
	require.Len(t, langs, 3)
	assert.Equal(t, "en", langs[0].Code)
	assert.Equal(t, "मराठी", langs[2].Name)
}

func TestPingCommand(t *testing.T) {
	srv, _ := predictServer(t)
	out, err := run(t, "--url", srv.URL, "ping")
	require.NoError(t, err)
	assert.Equal(t, "Hello, I am alive\n", out)
}

func TestPingCommand_Vision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			_, _ = io.WriteString(w, `{"version":"0.11.10"}`)
		case "/api/chat":
			_, _ = io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":"A green leaf.\n"},"done":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	leaf := writeLeaf(t, t.TempDir(), "leaf.png")

	out, err := run(t, "--backend", "ollama", "--url", srv.URL, "--model", "llava", "ping", "--vision", leaf)
	require.NoError(t, err)
	assert.Equal(t, "ollama 0.11.10\nA green leaf.\n", out)
}

func TestPingCommand_VisionUnsupported(t *testing.T) {
	srv, _ := predictServer(t)
	leaf := writeLeaf(t, t.TempDir(), "leaf.png")

	_, err := run(t, "--url", srv.URL, "ping", "--vision", leaf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot describe images")
}

func TestDiagnoseCommand(t *testing.T) {
	srv, langs := predictServer(t)
	dir := t.TempDir()
	writeLeaf(t, dir, "a.png")
	writeLeaf(t, dir, "b.png")
	outDir := filepath.Join(t.TempDir(), "artifacts")

	out, err := run(t, "--url", srv.URL, "--lang", "mr", "diagnose", "--save", "--out", outDir, dir)
	require.NoError(t, err)

	var reports []struct {
		Source string             `json:"source"`
		Result *controller.Result `json:"result"`
		Saved  string             `json:"saved_to"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "a.png", reports[0].Source)
	assert.Equal(t, "42.00", reports[0].Result.Confidence)
	assert.Equal(t, controller.BandLow, reports[0].Result.Band)
	assert.FileExists(t, reports[1].Saved)
	assert.Equal(t, []string{"mr", "mr"}, *langs)
}

func TestDiagnoseCommand_Errors(t *testing.T) {
	_, err := run(t, "diagnose")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err = run(t, "--url", srv.URL, "diagnose", writeLeaf(t, t.TempDir(), "leaf.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[TRANSPORT_ERROR]")
}

func TestDevicesCommand_Unsupported(t *testing.T) {
	_, err := run(t, "devices")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[UNSUPPORTED]")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predictor:\n  backend: telepathy\n"), 0644))

	_, err := run(t, "--config", path, "languages")
	assert.Error(t, err)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	a := writeLeaf(t, dir, "a.jpg")

	got, err := expandInputs([]string{dir, "https://example.com/leaf.jpg", "single.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{a, "https://example.com/leaf.jpg", "single.png"}, got)
}

func TestDefaultURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", defaultURL("ollama", "x"))
	assert.Equal(t, "http://localhost:8080", defaultURL("llamacpp", "x"))
	assert.Equal(t, "x", defaultURL("remote", "x"))
}
