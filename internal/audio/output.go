package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceUnavailable is returned when no audio device can be opened
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Output is a handle to somewhere cues can be played. It is created once by the
// composition root and shared by every notifier that plays through it.
type Output interface {
	// Open prepares a stream for audio of the given format
	Open(ctx context.Context, format Format) (Stream, error)
}

// Stream plays PCM frames. Write blocks for roughly as long as the frames take to play.
type Stream interface {
	Write(ctx context.Context, frames []byte) error
	Close() error
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DiscardOutput drops audio. When paced, writes take as long as the audio would
// take to play so that cancellation behaves like a real device.
type DiscardOutput struct {
	Paced bool
}

// NewDiscardOutput creates a discarding output
func NewDiscardOutput(paced bool) *DiscardOutput {
	return &DiscardOutput{Paced: paced}
}

// Open implements Output
func (d *DiscardOutput) Open(ctx context.Context, format Format) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &discardStream{format: format, paced: d.Paced}, nil
}

type discardStream struct {
	format Format
	paced  bool
}

func (s *discardStream) Write(ctx context.Context, frames []byte) error {
	if !s.paced {
		return ctx.Err()
	}
	return sleepContext(ctx, s.format.Duration(len(frames)/s.format.FrameSize()))
}

func (s *discardStream) Close() error { return nil }

// Encoding of cue audio sent to remote clients
type Encoding string

const (
	EncodingPCMU  Encoding = "pcmu"  // G.711 μ-law, 8kHz mono
	EncodingPCM16 Encoding = "pcm16" // 16-bit little-endian mono at the clip rate
)

// ParseEncoding validates an encoding name
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingPCMU, EncodingPCM16:
		return Encoding(s), nil
	}
	return "", fmt.Errorf("unknown cue encoding %q", s)
}

// Chunk is one piece of an encoded cue
type Chunk struct {
	Cue        string
	Encoding   Encoding
	SampleRate int
	Payload    []byte
}

// ChunkSink delivers encoded chunks to a remote client
type ChunkSink func(ctx context.Context, chunk Chunk) error

// StreamOutput encodes cue audio and hands it to a sink, paced to real time so that a
// restarted cue stops sending the old one.
type StreamOutput struct {
	cue      string
	encoding Encoding
	sink     ChunkSink
	paced    bool
}

// NewStreamOutput creates an output for one cue name
func NewStreamOutput(cue string, encoding Encoding, sink ChunkSink, paced bool) *StreamOutput {
	return &StreamOutput{cue: cue, encoding: encoding, sink: sink, paced: paced}
}

// Open implements Output
func (o *StreamOutput) Open(ctx context.Context, format Format) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &encodingStream{out: o, format: format}, nil
}

type encodingStream struct {
	out    *StreamOutput
	format Format
}

func (s *encodingStream) Write(ctx context.Context, frames []byte) error {
	if len(frames) == 0 {
		return nil
	}

	start := time.Now()
	mono := ToPCM16Mono(frames, s.format)

	chunk := Chunk{
		Cue:        s.out.cue,
		Encoding:   s.out.encoding,
		SampleRate: s.format.SampleRate,
	}
	if s.out.encoding == EncodingPCMU {
		chunk.Payload = EncodePCMU(mono, s.format.SampleRate)
		chunk.SampleRate = PCMURate
	} else {
		chunk.Payload = PCM16Bytes(mono)
	}

	if err := s.out.sink(ctx, chunk); err != nil {
		return err
	}

	if !s.out.paced {
		return nil
	}
	played := s.format.Duration(len(frames) / s.format.FrameSize())
	return sleepContext(ctx, played-time.Since(start))
}

func (s *encodingStream) Close() error { return nil }
