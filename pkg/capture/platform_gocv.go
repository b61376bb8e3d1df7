//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

// primeAttempts is how many reads a new stream gets to deliver its first frame.
const primeAttempts = 30

// DefaultPlatform returns an OpenCV-backed camera platform.
func DefaultPlatform(cfg PlatformConfig) Platform {
	if cfg.MaxProbe <= 0 {
		cfg.MaxProbe = 4
	}
	return &cvPlatform{maxProbe: cfg.MaxProbe}
}

// cvPlatform addresses cameras by OpenCV device index.
type cvPlatform struct {
	maxProbe int
}

func (p *cvPlatform) Supported() bool { return true }

// EnumerateDevices probes indices 0..maxProbe-1. OpenCV exposes no labels.
func (p *cvPlatform) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	for i := 0; i < p.maxProbe; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			out = append(out, DeviceInfo{ID: strconv.Itoa(i), Kind: types.VideoInput})
		}
		vc.Close()
	}
	return out, nil
}

// RequestStream opens the pinned device, or index 0. OpenCV has no notion of
// facing mode so the environment preference falls back to the first camera.
func (p *cvPlatform) RequestStream(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index := 0
	if c.DeviceID != "" {
		n, err := strconv.Atoi(c.DeviceID)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid device id %q", ErrNotFound, c.DeviceID)
		}
		index = n
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %d: %v", ErrNotFound, index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: camera %d", ErrNotFound, index)
	}

	if c.IdealWidth > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
	}
	if c.IdealHeight > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}

	s := &cvStream{vc: vc, ready: make(chan struct{})}
	go s.prime()
	return s, nil
}

// cvStream is a single-track stream over one VideoCapture.
type cvStream struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	closed bool
	width  int
	height int
	ready  chan struct{}
}

func (s *cvStream) Tracks() []Track { return []Track{s} }
func (s *cvStream) Source() Source  { return s }

func (s *cvStream) Ready() <-chan struct{} { return s.ready }

// prime reads until the first non-empty frame arrives, which is when the
// stream's real dimensions become known.
func (s *cvStream) prime() {
	mat := gocv.NewMat()
	defer mat.Close()

	for i := 0; i < primeAttempts; i++ {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		ok := s.vc.Read(&mat)
		if ok && !mat.Empty() {
			s.width, s.height = mat.Cols(), mat.Rows()
			s.mu.Unlock()
			close(s.ready)
			return
		}
		s.mu.Unlock()
	}
}

func (s *cvStream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *cvStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotReady
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := s.vc.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("read frame: camera returned no data")
	}
	return mat.ToImage()
}

// Stop releases the device. Safe to call more than once.
func (s *cvStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.vc.Close()
}
