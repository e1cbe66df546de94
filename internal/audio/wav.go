package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrInvalidClip is returned for data that is not a mono or stereo integer PCM WAV file
var ErrInvalidClip = errors.New("invalid WAV clip")

const formatPCM = 1

// Format describes interleaved integer PCM audio
type Format struct {
	Channels    int
	SampleWidth int // bytes per sample
	SampleRate  int
}

// FrameSize returns the number of bytes in one frame (one sample per channel)
func (f Format) FrameSize() int {
	return f.Channels * f.SampleWidth
}

// Duration returns the play time of frames frames
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that the format is one the package can play
func (f Format) Validate() error {
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%w: only mono and stereo are supported, got %d channels", ErrInvalidClip, f.Channels)
	}
	switch f.SampleWidth {
	case 1, 2, 3, 4:
	default:
		return fmt.Errorf("%w: unsupported sample width %d bytes", ErrInvalidClip, f.SampleWidth)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid sample rate %d", ErrInvalidClip, f.SampleRate)
	}
	return nil
}

// Clip is a decoded WAV file held in memory. It is immutable and may be shared.
type Clip struct {
	Format Format
	Data   []byte // interleaved little-endian PCM, whole frames only
}

// NewClip wraps raw PCM data, dropping a trailing partial frame
func NewClip(format Format, data []byte) (*Clip, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	n := len(data) - len(data)%format.FrameSize()
	return &Clip{Format: format, Data: data[:n]}, nil
}

// Frames returns the number of frames in the clip
func (c *Clip) Frames() int {
	return len(c.Data) / c.Format.FrameSize()
}

// Duration returns the play time of the clip
func (c *Clip) Duration() time.Duration {
	return c.Format.Duration(c.Frames())
}

// LoadClip reads and validates a WAV file
func LoadClip(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip %s: %w", path, err)
	}

	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("clip %s: %w", path, err)
	}
	return clip, nil
}

// DecodeWAV parses a RIFF/WAVE container holding integer PCM
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: file too short", ErrInvalidClip)
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("%w: not a RIFF file", ErrInvalidClip)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a WAVE file", ErrInvalidClip)
	}

	var (
		format  Format
		haveFmt bool
		pcm     []byte
		havePCM bool
	)

	rest := data[12:]
	for len(rest) >= 8 {
		chunkID := string(rest[0:4])
		chunkSize := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]

		// Streamed files may declare more than was written
		if chunkSize > len(rest) || chunkSize < 0 {
			chunkSize = len(rest)
		}
		body := rest[:chunkSize]

		switch chunkID {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too small: %d bytes", ErrInvalidClip, len(body))
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != formatPCM {
				return nil, fmt.Errorf("%w: only PCM format is supported, got format %d", ErrInvalidClip, tag)
			}
			bits := int(binary.LittleEndian.Uint16(body[14:16]))
			if bits%8 != 0 {
				return nil, fmt.Errorf("%w: unsupported bits per sample %d", ErrInvalidClip, bits)
			}
			format = Format{
				Channels:    int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:  int(binary.LittleEndian.Uint32(body[4:8])),
				SampleWidth: bits / 8,
			}
			haveFmt = true
		case "data":
			pcm = body
			havePCM = true
		}

		// Chunks are word aligned
		if chunkSize%2 == 1 && chunkSize < len(rest) {
			chunkSize++
		}
		rest = rest[chunkSize:]
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidClip)
	}
	if !havePCM {
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidClip)
	}

	return NewClip(format, bytes.Clone(pcm))
}

// EncodeWAV serializes the clip as a canonical 44-byte header WAV file
func EncodeWAV(c *Clip) []byte {
	f := c.Format
	buf := make([]byte, 44+len(c.Data))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(c.Data)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*f.FrameSize()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(f.FrameSize()))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(f.SampleWidth*8))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(c.Data)))
	copy(buf[44:], c.Data)

	return buf
}
