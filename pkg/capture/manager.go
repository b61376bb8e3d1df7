// Package capture owns the camera lifecycle: device enumeration, acquiring and
// releasing streams, and copying still frames out of a live source.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/leaf-doctor/internal/log"
	"github.com/menta2k/leaf-doctor/pkg/failure"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Default stream parameters.
const (
	DefaultIdealWidth   = 1280
	DefaultIdealHeight  = 720
	DefaultReadyTimeout = 10 * time.Second
)

// State is the manager's lifecycle state.
type State int

const (
	Idle State = iota
	Starting
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager holds at most one capture session at a time.
type Manager struct {
	platform     Platform
	idealWidth   int
	idealHeight  int
	readyTimeout time.Duration
	logger       *slog.Logger

	// op serializes hardware transitions and snapshots.
	op sync.Mutex

	mu        sync.Mutex
	state     State
	session   *Session
	permitted bool
	selected  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdealResolution sets the resolution requested from the platform.
func WithIdealResolution(width, height int) Option {
	return func(m *Manager) {
		m.idealWidth, m.idealHeight = width, height
	}
}

// WithReadyTimeout bounds how long StartSession waits for stream metadata.
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.readyTimeout = d
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager over the given platform.
func NewManager(p Platform, opts ...Option) *Manager {
	m := &Manager{
		platform:     p,
		idealWidth:   DefaultIdealWidth,
		idealHeight:  DefaultIdealHeight,
		readyTimeout: DefaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.With("component", "capture")
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Selected returns the device chosen by the last successful start or SwitchDevice.
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// ListDevices enumerates video inputs. If camera permission has not been
// established yet, a throwaway stream is opened to trigger the prompt and
// closed again before enumeration. On failure it returns an empty list
// together with the tagged error.
func (m *Manager) ListDevices(ctx context.Context) ([]types.CaptureDevice, error) {
	const op = "list devices"
	devices := []types.CaptureDevice{}

	if !m.platform.Supported() {
		return devices, failure.New(failure.Unsupported, op, ErrNotSupported)
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	needPrompt := !m.permitted && m.session == nil
	m.mu.Unlock()

	if needPrompt {
		probe, err := m.platform.RequestStream(ctx, Constraints{})
		if err != nil {
			err = mapError(op, err)
			m.logger.Warn("camera permission request failed", "error", err)
			return devices, err
		}
		stopTracks(probe)
		m.mu.Lock()
		m.permitted = true
		m.mu.Unlock()
	}

	infos, err := m.platform.EnumerateDevices(ctx)
	if err != nil {
		err = mapError(op, err)
		m.logger.Warn("device enumeration failed", "error", err)
		return devices, err
	}

	for _, info := range infos {
		if info.Kind != types.VideoInput {
			continue
		}
		label := info.Label
		if label == "" {
			label = fmt.Sprintf("Camera %d", len(devices)+1)
		}
		devices = append(devices, types.CaptureDevice{ID: info.ID, Label: label, Kind: types.VideoInput})
	}
	m.logger.Debug("enumerated cameras", "count", len(devices))
	return devices, nil
}

// StartSession stops any active session, then acquires a stream for deviceID
// (or the rear-facing default when empty) and waits until it is ready.
// Anything acquired before a failure is released again.
func (m *Manager) StartSession(ctx context.Context, deviceID string) (*Session, error) {
	const op = "start session"

	m.op.Lock()
	defer m.op.Unlock()

	if m.stopLocked() {
		m.logger.Debug("stopped previous session before start")
	}

	if !m.platform.Supported() {
		return nil, failure.New(failure.Unsupported, op, ErrNotSupported)
	}

	m.setState(Starting)

	c := Constraints{IdealWidth: m.idealWidth, IdealHeight: m.idealHeight}
	if deviceID != "" {
		c.DeviceID = deviceID
	} else {
		c.FacingMode = FacingEnvironment
	}

	stream, err := m.platform.RequestStream(ctx, c)
	if err != nil {
		m.setState(Idle)
		err = mapError(op, err)
		m.logger.Warn("camera start failed", "device", deviceID, "error", err)
		return nil, err
	}

	m.mu.Lock()
	m.permitted = true
	m.mu.Unlock()

	sess := &Session{deviceID: deviceID, stream: stream, source: stream.Source()}
	if err := m.awaitReady(ctx, sess); err != nil {
		sess.release()
		m.setState(Idle)
		m.logger.Warn("camera never became ready", "device", deviceID, "error", err)
		return nil, err
	}

	m.mu.Lock()
	m.session = sess
	m.state = Active
	m.selected = deviceID
	m.mu.Unlock()

	w, h := sess.Dimensions()
	m.logger.Info("camera session started", "device", deviceID, "width", w, "height", h)
	return sess, nil
}

func (m *Manager) awaitReady(ctx context.Context, sess *Session) error {
	const op = "start session"
	if sess.source == nil {
		return failure.Newf(failure.AccessError, op, "stream has no video source")
	}

	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()

	select {
	case <-sess.source.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return failure.Newf(failure.AccessError, op, "stream not ready after %s", m.readyTimeout)
	}
}

// StopSession halts the active session. It reports whether one was active.
func (m *Manager) StopSession() bool {
	m.op.Lock()
	defer m.op.Unlock()
	return m.stopLocked()
}

// stopLocked requires m.op.
func (m *Manager) stopLocked() bool {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.state = Idle
	m.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.release()
	m.logger.Info("camera session stopped", "device", sess.deviceID)
	return true
}

// SwitchDevice selects another camera. With an active session that is one
// stop followed by one start on the new device; otherwise only the selection
// is recorded and the returned session is nil.
func (m *Manager) SwitchDevice(ctx context.Context, deviceID string) (*Session, error) {
	if m.State() != Active {
		m.mu.Lock()
		m.selected = deviceID
		m.mu.Unlock()
		return nil, nil
	}
	m.StopSession()
	return m.StartSession(ctx, deviceID)
}

// Snapshot copies the current frame of sess, which must be the active, ready
// session. The frame has exactly the source's displayed dimensions.
func (m *Manager) Snapshot(sess *Session) (types.RawFrame, error) {
	const op = "snapshot"

	m.op.Lock()
	defer m.op.Unlock()

	if sess == nil || sess != m.Active() {
		return types.RawFrame{}, failure.New(failure.AccessError, op, ErrNoSession)
	}
	select {
	case <-sess.source.Ready():
	default:
		return types.RawFrame{}, failure.New(failure.AccessError, op, ErrNotReady)
	}

	w, h := sess.source.Dimensions()
	if w <= 0 || h <= 0 {
		return types.RawFrame{}, failure.New(failure.AccessError, op, ErrNotReady)
	}

	img, err := sess.source.Frame()
	if err != nil {
		return types.RawFrame{}, mapError(op, err)
	}

	copied := imaging.Clone(img)
	if b := copied.Bounds(); b.Dx() != w || b.Dy() != h {
		copied = imaging.Resize(copied, w, h, imaging.Linear)
	}

	return types.RawFrame{Image: copied, DeviceID: sess.deviceID, CapturedAt: time.Now()}, nil
}

// Close releases the camera. Owners must call it when they go away.
func (m *Manager) Close() {
	m.StopSession()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// mapError converts platform errors into tagged failures. Context errors pass through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotAllowed):
		return failure.New(failure.PermissionDenied, op, err)
	case errors.Is(err, ErrNotFound):
		return failure.New(failure.DeviceNotFound, op, err)
	case errors.Is(err, ErrNotSupported):
		return failure.New(failure.Unsupported, op, err)
	default:
		return failure.New(failure.AccessError, op, err)
	}
}
