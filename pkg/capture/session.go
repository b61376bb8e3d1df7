package capture

import "sync"

// Session is a live binding between one camera and its pixel source.
// Only the Manager that created it may stop it.
type Session struct {
	deviceID string
	stream   Stream
	source   Source

	once sync.Once
}

// DeviceID is the pinned device, or "" for the platform default.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Ready is closed once the source's dimensions are known.
func (s *Session) Ready() <-chan struct{} {
	return s.source.Ready()
}

// Dimensions returns the live source size.
func (s *Session) Dimensions() (int, int) {
	return s.source.Dimensions()
}

// release stops every track exactly once.
func (s *Session) release() {
	s.once.Do(func() {
		stopTracks(s.stream)
	})
}
