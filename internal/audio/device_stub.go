//go:build !portaudio

package audio

import "context"

// DeviceOutput is unavailable in builds without the portaudio tag
type DeviceOutput struct{}

// NewDeviceOutput always fails; build with -tags portaudio for local playback
func NewDeviceOutput() (*DeviceOutput, error) {
	return nil, ErrDeviceUnavailable
}

// Open implements Output
func (d *DeviceOutput) Open(ctx context.Context, format Format) (Stream, error) {
	return nil, ErrDeviceUnavailable
}

// Available always reports false
func (d *DeviceOutput) Available() (bool, error) {
	return false, ErrDeviceUnavailable
}

// Close is a no-op
func (d *DeviceOutput) Close() error { return nil }
