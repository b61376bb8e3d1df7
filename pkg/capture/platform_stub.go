//go:build !gocv

package capture

import "context"

// DefaultPlatform returns the platform compiled into this binary.
// Without the gocv build tag there is no camera support.
func DefaultPlatform(PlatformConfig) Platform {
	return unsupportedPlatform{}
}

type unsupportedPlatform struct{}

func (unsupportedPlatform) Supported() bool { return false }

func (unsupportedPlatform) RequestStream(context.Context, Constraints) (Stream, error) {
	return nil, ErrNotSupported
}

func (unsupportedPlatform) EnumerateDevices(context.Context) ([]DeviceInfo, error) {
	return nil, ErrNotSupported
}
