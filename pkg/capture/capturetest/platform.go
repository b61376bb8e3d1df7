// Package capturetest provides an in-memory camera platform for tests of
// code built on the capture Manager.
package capturetest

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/menta2k/leaf-doctor/pkg/capture"
	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Platform hands out streams that are ready immediately and show a solid
// frame. Exported fields may be changed between calls.
type Platform struct {
	mu sync.Mutex

	Devices     []capture.DeviceInfo
	Unsupported bool
	// RequestErr is returned by RequestStream when set.
	RequestErr error
	EnumErr    error
	Width      int
	Height     int

	requests []capture.Constraints
	streams  []*Stream
}

// NewPlatform returns a platform with two unlabeled cameras producing
// 640x480 frames.
func NewPlatform() *Platform {
	return &Platform{
		Devices: []capture.DeviceInfo{
			{ID: "0", Kind: types.VideoInput},
			{ID: "1", Kind: types.VideoInput},
		},
		Width:  640,
		Height: 480,
	}
}

func (p *Platform) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Unsupported
}

func (p *Platform) RequestStream(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, c)
	if p.RequestErr != nil {
		return nil, p.RequestErr
	}
	s := &Stream{
		ready:  make(chan struct{}),
		width:  p.Width,
		height: p.Height,
		frame:  Solid(p.Width, p.Height, color.NRGBA{R: 40, G: 160, B: 60, A: 255}),
	}
	close(s.ready)
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *Platform) EnumerateDevices(context.Context) ([]capture.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnumErr != nil {
		return nil, p.EnumErr
	}
	out := make([]capture.DeviceInfo, len(p.Devices))
	copy(out, p.Devices)
	return out, nil
}

// Requests returns the constraints of every RequestStream call.
func (p *Platform) Requests() []capture.Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capture.Constraints, len(p.requests))
	copy(out, p.requests)
	return out
}

// Streams returns every stream handed out so far.
func (p *Platform) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// Live counts streams that were never stopped.
func (p *Platform) Live() int {
	n := 0
	for _, s := range p.Streams() {
		if s.Stops() == 0 {
			n++
		}
	}
	return n
}

// Stream is a single-track stream that is its own source.
type Stream struct {
	ready  chan struct{}
	width  int
	height int
	frame  image.Image
	stops  atomic.Int32
}

func (s *Stream) Tracks() []capture.Track { return []capture.Track{s} }
func (s *Stream) Source() capture.Source  { return s }

func (s *Stream) Ready() <-chan struct{}      { return s.ready }
func (s *Stream) Dimensions() (int, int)      { return s.width, s.height }
func (s *Stream) Frame() (image.Image, error) { return s.frame, nil }

// Stop records a track stop.
func (s *Stream) Stop() { s.stops.Add(1) }

// Stops reports how many times the track was stopped.
func (s *Stream) Stops() int { return int(s.stops.Load()) }

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
