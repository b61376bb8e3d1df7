package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	leafdoctor "github.com/menta2k/leaf-doctor"
	"github.com/menta2k/leaf-doctor/internal/config"
	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/internal/utils"
	"github.com/menta2k/leaf-doctor/pkg/controller"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/processing"
)

// env holds what every command needs. It is filled in by the app's Before hook.
type env struct {
	out io.Writer
	cfg *config.Config
	doc *leafdoctor.Doctor
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer) *cli.App {
	e := &env{out: out}

	app := &cli.App{
		Name:    "leaf-doctor",
		Usage:   "Diagnose plant leaf diseases from photos",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (.json, .yaml or .yml)"},
			&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "Display language: en|hi|mr"},
			&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "Prediction backend: remote|ollama|llamacpp"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Prediction server URL"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model name for ollama/llamacpp"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format: text|json"},
		},
		Before: e.setup,
		After: func(*cli.Context) error {
			if e.doc != nil {
				e.doc.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			diagnoseCmd(e),
			devicesCmd(e),
			captureCmd(e),
			previewCmd(e),
			pingCmd(e),
			languagesCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setup loads the configuration, applies flag overrides and builds the Doctor.
func (e *env) setup(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	overrides := map[string]*string{
		"lang":       &cfg.Locale.Language,
		"backend":    &cfg.Predictor.Backend,
		"url":        &cfg.Predictor.URL,
		"model":      &cfg.Predictor.Model,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	for name, dst := range overrides {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("backend") && !c.IsSet("url") {
		cfg.Predictor.URL = defaultURL(cfg.Predictor.Backend, cfg.Predictor.URL)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)

	doc, err := leafdoctor.New(cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	e.cfg, e.doc = cfg, doc
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if p := config.GetConfigPath(); utils.FileExists(p) {
		return config.LoadFromFile(p)
	}
	return config.Default(), nil
}

// defaultURL picks the usual address of a backend when only --backend was given.
func defaultURL(backend, current string) string {
	switch backend {
	case config.BackendOllama:
		return "http://localhost:11434"
	case config.BackendLlamaCpp:
		return "http://localhost:8080"
	default:
		return current
	}
}

func (e *env) lang() string {
	return e.doc.Catalog.Resolve(e.cfg.Locale.Language)
}

// diagnoseCmd creates the diagnose command.
func diagnoseCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "diagnose",
		Usage:     "Diagnose image files, directories of images or image URLs",
		ArgsUsage: "<path|dir|url>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "save", Usage: "Save the normalized 256x256 artifacts"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory for saved artifacts"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one image path or URL is required", 1)
			}
			if c.Bool("save") {
				e.cfg.Output.SaveArtifact = true
			}
			if out := c.String("out"); out != "" {
				e.cfg.Output.OutputDir = out
			}

			inputs, err := expandInputs(c.Args().Slice())
			if err != nil {
				return e.outputError(err)
			}

			reports := make([]*leafdoctor.Report, 0, len(inputs))
			for _, in := range inputs {
				var report *leafdoctor.Report
				if isURL(in) {
					report, err = e.doc.DiagnoseURL(c.Context, in, e.lang())
				} else {
					report, err = e.doc.DiagnoseFile(c.Context, in, e.lang())
				}
				if err != nil {
					return e.outputError(fmt.Errorf("%s: %w", in, err))
				}
				log.Info("diagnosed", "input", in, "class", report.Diagnosis.Class)
				reports = append(reports, report)
			}
			return e.outputJSON(reports)
		},
	}
}

// devicesCmd creates the devices command.
func devicesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List cameras",
		Action: func(c *cli.Context) error {
			devices, err := e.doc.Camera.ListDevices(c.Context)
			if err != nil {
				return e.outputError(err)
			}
			return e.outputJSON(devices)
		},
	}
}

// captureCmd creates the capture command.
func captureCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Take a photo with a camera and diagnose it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Camera id (default: first camera)"},
			&cli.DurationFlag{Name: "warmup", Value: 500 * time.Millisecond, Usage: "Time to let exposure settle before the snapshot"},
			&cli.StringFlag{Name: "save-frame", Usage: "Also write the full-size frame (.jpg, .png or .webp)"},
			&cli.BoolFlag{Name: "no-submit", Usage: "Only capture and normalize"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			ctrl, err := e.doc.NewController(notifier(), !c.Bool("no-submit"))
			if err != nil {
				return e.outputError(err)
			}
			defer ctrl.Close()

			if _, err := ctrl.RefreshDevices(ctx); err != nil {
				return e.outputError(err)
			}
			if id := c.String("device"); id != "" {
				if err := ctrl.SelectDevice(ctx, id); err != nil {
					return e.outputError(err)
				}
			}
			if err := ctrl.StartCamera(ctx); err != nil {
				return e.outputError(err)
			}

			if err := sleep(ctx, c.Duration("warmup")); err != nil {
				return e.outputError(err)
			}

			if path := c.String("save-frame"); path != "" {
				if err := e.saveFrame(path); err != nil {
					return e.outputError(err)
				}
			}

			if _, err := ctrl.Capture(ctx); err != nil {
				return e.outputError(err)
			}
			if msg := ctrl.State().Message; msg != "" {
				return cli.Exit(msg, 1)
			}
			return e.outputJSON(ctrl.View())
		},
	}
}

// saveFrame writes the current camera frame at full size.
func (e *env) saveFrame(path string) error {
	frame, err := e.doc.Camera.Snapshot(e.doc.Camera.Active())
	if err != nil {
		return err
	}
	format := utils.GetFileExtension(path)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := e.doc.Processor.SaveImage(frame.Image, path, format, processing.JPEGQuality, false); err != nil {
		return err
	}
	log.Info("frame saved", "path", path, "width", frame.Width(), "height", frame.Height())
	return nil
}

// previewCmd creates the preview command.
func previewCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Normalize a photo and serve the result over HTTP until interrupted",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8765", Usage: "Listen address"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one image path is required", 1)
			}
			src, err := processing.FromFile(c.Args().First())
			if err != nil {
				return e.outputError(err)
			}
			artifact, err := e.doc.Processor.Normalize(c.Context, src)
			if err != nil {
				return e.outputError(err)
			}
			h := e.doc.Previews.DeriveFromArtifact(artifact)
			defer e.doc.Previews.Revoke(h)

			ln, err := net.Listen("tcp", c.String("addr"))
			if err != nil {
				return e.outputError(err)
			}
			srv := &http.Server{Handler: e.doc.Previews.Handler(), ReadHeaderTimeout: 10 * time.Second}

			fmt.Fprintf(e.out, "http://%s/preview/%s\n", ln.Addr(), h.ID)
			return serve(c.Context, srv, ln)
		},
	}
}

func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// pingCmd creates the ping command.
func pingCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check that the prediction backend is alive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "vision",
				Usage: "Also ask a vision backend to describe this image",
			},
		},
		Action: func(c *cli.Context) error {
			msg, err := e.doc.Ping(c.Context)
			if err != nil {
				return e.outputError(err)
			}
			fmt.Fprintln(e.out, msg)

			if path := c.String("vision"); path != "" {
				text, err := e.doc.Describe(c.Context, path)
				if err != nil {
					return e.outputError(err)
				}
				fmt.Fprintln(e.out, strings.TrimSpace(text))
			}
			return nil
		},
	}
}

// languagesCmd creates the languages command.
func languagesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "List display languages",
		Action: func(c *cli.Context) error {
			return e.outputJSON(controller.Render(e.doc.Catalog, controller.State{Language: e.lang()}).Languages)
		},
	}
}

// expandInputs replaces directories by the images they contain.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if !isURL(a) && utils.DirExists(a) {
			files, err := utils.ListImageFiles(a)
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifier logs user-facing messages; the command returns them as its error.
func notifier() controller.Notifier {
	return controller.NotifierFunc(func(msg string) {
		log.Debug("notify", "message", msg)
	})
}

// outputJSON writes JSON output.
func (e *env) outputJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI with the localized message.
func (e *env) outputError(err error) error {
	if kind := failure.KindOf(err); kind != "" {
		return cli.Exit(fmt.Sprintf("[%s] %s (%v)", kind, e.doc.Catalog.Message(e.lang(), err), err), 1)
	}
	return cli.Exit(err.Error(), 1)
}
