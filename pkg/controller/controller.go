// Package controller holds the state of one diagnosis screen and the named
// transitions that change it: picking cameras, capturing or selecting a
// photo, submitting it, switching language and clearing.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/pkg/capture"
	"github.com/menta2k/leaf-doctor/pkg/client"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/i18n"
	"github.com/menta2k/leaf-doctor/pkg/preview"
	"github.com/menta2k/leaf-doctor/pkg/processing"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Notifier shows a localized message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// State is a snapshot of everything the screen shows.
type State struct {
	Language       string
	Devices        []types.CaptureDevice
	SelectedDevice string
	CameraActive   bool

	// HasImage is set once a photo was captured or selected.
	HasImage   bool
	SourceName string
	Artifact   *types.Artifact
	PreviewURL string

	Diagnosis *types.Diagnosis
	Loading   bool
	// Message is the last message passed to the Notifier.
	Message string
}

// Deps are the collaborators of a Controller. Camera and Notifier are optional.
type Deps struct {
	Camera    *capture.Manager
	Processor *processing.Processor
	Predictor client.Predictor
	Catalog   *i18n.Catalog
	Previews  *preview.Store
	Notifier  Notifier
	Language  string
	// AutoSubmit submits every newly captured or selected photo.
	AutoSubmit bool
}

// ErrNoImage is returned by Submit before any photo was provided.
var ErrNoImage = errors.New("no image to submit")

// ErrNoCamera is returned by camera transitions when no camera is configured.
var ErrNoCamera = failure.New(failure.Unsupported, "camera", errors.New("no camera configured"))

// Controller serializes transitions; State may be read concurrently.
type Controller struct {
	camera     *capture.Manager
	processor  *processing.Processor
	predictor  client.Predictor
	catalog    *i18n.Catalog
	previews   *preview.Store
	slot       *preview.Slot
	notifier   Notifier
	autoSubmit bool
	logger     *slog.Logger

	op sync.Mutex

	mu    sync.RWMutex
	state State
}

// New creates a controller.
func New(d Deps) (*Controller, error) {
	if d.Processor == nil || d.Predictor == nil || d.Catalog == nil || d.Previews == nil {
		return nil, errors.New("controller: processor, predictor, catalog and previews are required")
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	c := &Controller{
		camera:     d.Camera,
		processor:  d.Processor,
		predictor:  d.Predictor,
		catalog:    d.Catalog,
		previews:   d.Previews,
		slot:       preview.NewSlot(d.Previews),
		notifier:   notifier,
		autoSubmit: d.AutoSubmit,
		logger:     log.With("component", "controller"),
	}
	c.state.Language = d.Catalog.Resolve(d.Language)
	c.state.Devices = []types.CaptureDevice{}
	return c, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.Devices = append([]types.CaptureDevice(nil), c.state.Devices...)
	return s
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

func (c *Controller) language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Language
}

// fail reports err to the user once and returns it.
func (c *Controller) fail(lang string, err error) error {
	msg := c.catalog.Message(lang, err)
	c.update(func(s *State) { s.Message = msg })
	c.logger.Warn("operation failed", "error", err, "message_key", i18n.MessageKey(err))
	c.notifier.Notify(msg)
	return err
}

// RefreshDevices re-enumerates cameras. The first device becomes the
// selection when nothing is selected yet.
func (c *Controller) RefreshDevices(ctx context.Context) ([]types.CaptureDevice, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if c.camera == nil {
		return nil, c.fail(c.language(), ErrNoCamera)
	}
	devices, err := c.camera.ListDevices(ctx)
	if c.camera.Selected() == "" && len(devices) > 0 && c.camera.State() != capture.Active {
		_, _ = c.camera.SwitchDevice(ctx, devices[0].ID)
	}
	selected := c.camera.Selected()
	c.update(func(s *State) {
		s.Devices = devices
		s.SelectedDevice = selected
	})
	if err != nil {
		return devices, c.fail(c.language(), err)
	}
	return devices, nil
}

// SelectDevice changes the camera. A running camera is restarted on the new device.
func (c *Controller) SelectDevice(ctx context.Context, deviceID string) error {
	c.op.Lock()
	defer c.op.Unlock()

	if c.camera == nil {
		return c.fail(c.language(), ErrNoCamera)
	}
	c.update(func(s *State) { s.SelectedDevice = deviceID })

	sess, err := c.camera.SwitchDevice(ctx, deviceID)
	if err != nil {
		c.update(func(s *State) { s.CameraActive = false })
		return c.fail(c.language(), err)
	}
	selected := c.camera.Selected()
	c.update(func(s *State) {
		s.SelectedDevice = selected
		s.CameraActive = sess != nil
	})
	return nil
}

// StartCamera opens the selected camera.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	if c.camera == nil {
		return c.fail(c.language(), ErrNoCamera)
	}
	c.mu.RLock()
	deviceID := c.state.SelectedDevice
	c.mu.RUnlock()

	if _, err := c.camera.StartSession(ctx, deviceID); err != nil {
		c.update(func(s *State) { s.CameraActive = false })
		return c.fail(c.language(), err)
	}
	selected := c.camera.Selected()
	c.update(func(s *State) {
		s.SelectedDevice = selected
		s.CameraActive = true
	})
	return nil
}

// StopCamera releases the camera.
func (c *Controller) StopCamera() {
	c.op.Lock()
	defer c.op.Unlock()
	c.stopCamera()
}

func (c *Controller) stopCamera() {
	if c.camera != nil {
		c.camera.StopSession()
	}
	c.update(func(s *State) { s.CameraActive = false })
}

// Capture snapshots the running camera, normalizes the frame, shows it as
// the preview and stops the camera.
func (c *Controller) Capture(ctx context.Context) (*types.Artifact, error) {
	c.op.Lock()
	defer c.op.Unlock()

	lang := c.language()
	if c.camera == nil {
		return nil, c.fail(lang, ErrNoCamera)
	}

	frame, err := c.camera.Snapshot(c.camera.Active())
	if err != nil {
		return nil, c.fail(lang, err)
	}
	artifact, err := c.processor.Go(ctx, processing.FromFrame(frame)).Wait(ctx)
	if err != nil {
		return nil, c.fail(lang, err)
	}

	h := c.slot.Replace(c.previews.DeriveFromArtifact(artifact))
	c.setImage(artifact, processing.CaptureFilename, h)
	c.stopCamera()

	c.logger.Info("frame captured",
		"device", frame.DeviceID,
		"source_width", artifact.SourceWidth,
		"source_height", artifact.SourceHeight)

	if c.autoSubmit {
		c.submit(ctx, lang)
	}
	return &artifact, nil
}

// SelectFile takes an uploaded photo. The preview shows the original bytes;
// the normalized artifact is what gets submitted.
func (c *Controller) SelectFile(ctx context.Context, name string, data []byte) (*types.Artifact, error) {
	c.op.Lock()
	defer c.op.Unlock()

	lang := c.language()
	artifact, err := c.processor.Go(ctx, processing.FromBytes(name, data)).Wait(ctx)
	if err != nil {
		return nil, c.fail(lang, err)
	}

	h := c.slot.Replace(c.previews.DeriveFromBytes(data))
	c.setImage(artifact, name, h)

	if c.autoSubmit {
		c.submit(ctx, lang)
	}
	return &artifact, nil
}

func (c *Controller) setImage(a types.Artifact, name string, h preview.Handle) {
	c.update(func(s *State) {
		s.HasImage = true
		s.SourceName = name
		s.Artifact = &a
		s.PreviewURL = h.URL
		s.Diagnosis = nil
		s.Message = ""
	})
}

// Submit sends the current artifact for prediction in the current language.
// On failure the previous diagnosis is kept.
func (c *Controller) Submit(ctx context.Context) (*types.Diagnosis, error) {
	c.op.Lock()
	defer c.op.Unlock()
	return c.submit(ctx, c.language())
}

func (c *Controller) submit(ctx context.Context, lang string) (*types.Diagnosis, error) {
	c.mu.Lock()
	artifact := c.state.Artifact
	if !c.state.HasImage || artifact == nil {
		c.mu.Unlock()
		return nil, ErrNoImage
	}
	c.state.Loading = true
	c.mu.Unlock()

	d, err := c.predictor.Predict(ctx, *artifact, lang)
	c.update(func(s *State) { s.Loading = false })
	if err != nil {
		return nil, c.fail(lang, err)
	}

	c.update(func(s *State) {
		s.Diagnosis = d
		s.Message = ""
	})
	c.logger.Info("diagnosis received", "class", d.Class, "confidence", d.Confidence, "lang", lang)
	return d, nil
}

// SetLanguage switches the display language. An existing diagnosis is
// fetched again so server-side text follows the new language.
func (c *Controller) SetLanguage(ctx context.Context, lang string) error {
	c.op.Lock()
	defer c.op.Unlock()

	code := c.catalog.Resolve(lang)
	var resubmit bool
	c.update(func(s *State) {
		s.Language = code
		resubmit = s.Diagnosis != nil && s.HasImage
	})
	if !resubmit {
		return nil
	}
	_, err := c.submit(ctx, code)
	return err
}

// Clear forgets the photo, its preview and the diagnosis.
func (c *Controller) Clear() {
	c.op.Lock()
	defer c.op.Unlock()
	c.clear()
}

func (c *Controller) clear() {
	c.slot.Release()
	c.update(func(s *State) {
		s.HasImage = false
		s.SourceName = ""
		s.Artifact = nil
		s.PreviewURL = ""
		s.Diagnosis = nil
		s.Message = ""
	})
}

// Close releases the camera and the preview. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.op.Lock()
	defer c.op.Unlock()
	c.stopCamera()
	c.clear()
}
