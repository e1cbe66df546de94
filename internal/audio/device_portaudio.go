//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/lexiqai/wake-gate/internal/resilience"
)

// DeviceBufferFrames is the number of frames PortAudio is given per write
const DeviceBufferFrames = 1024

// DeviceOutput plays through the default PortAudio output device.
// It owns the PortAudio library lifetime: create one per process and Close it on shutdown.
type DeviceOutput struct {
	mu     sync.Mutex
	closed bool
}

// NewDeviceOutput initializes PortAudio
func NewDeviceOutput() (*DeviceOutput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &DeviceOutput{}, nil
}

// Open implements Output
func (d *DeviceOutput) Open(ctx context.Context, format Format) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrDeviceUnavailable
	}

	buf := make([]int16, DeviceBufferFrames*format.Channels)
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), DeviceBufferFrames, &buf)
	if errors.Is(err, portaudio.DeviceUnavailable) {
		// Usually held by another stream for a moment
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: %w", ErrDeviceUnavailable, err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return &deviceStream{stream: stream, format: format, buf: buf}, nil
}

// Close terminates PortAudio
func (d *DeviceOutput) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return portaudio.Terminate()
}

// Available reports whether the default output device can still be found
func (d *DeviceOutput) Available() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrDeviceUnavailable
	}
	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return true, nil
}

type deviceStream struct {
	stream *portaudio.Stream
	format Format
	buf    []int16
}

// Write converts frames to 16-bit samples and writes them a buffer at a time
func (s *deviceStream) Write(ctx context.Context, frames []byte) error {
	samples := toPCM16Interleaved(frames, s.format)

	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(s.buf, samples)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		samples = samples[n:]

		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}
	return nil
}

func (s *deviceStream) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}

func toPCM16Interleaved(data []byte, f Format) []int16 {
	if f.SampleWidth == 2 {
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out
	}

	out := make([]int16, len(data)/f.SampleWidth)
	for i := range out {
		off := i * f.SampleWidth
		out[i] = sampleToPCM16(data[off:off+f.SampleWidth], f.SampleWidth)
	}
	return out
}
