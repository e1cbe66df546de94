package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/resilience"
)

// ChunkFrames is the number of frames written to the output per call
const ChunkFrames = 1024

// Playback results recorded in metrics
const (
	resultCompleted = "completed"
	resultCancelled = "cancelled"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

// Option configures an AudioNotifier
type Option func(*AudioNotifier)

// WithName labels logs and metrics, e.g. "wake" or "idle"
func WithName(name string) Option {
	return func(n *AudioNotifier) { n.name = name }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(n *AudioNotifier) { n.logger = logger }
}

// WithMetrics records playback results
func WithMetrics(m *observability.Metrics) Option {
	return func(n *AudioNotifier) { n.metrics = m }
}

// WithRetryConfig controls how often opening the output is retried
func WithRetryConfig(cfg *resilience.RetryConfig) Option {
	return func(n *AudioNotifier) { n.retry = cfg }
}

// WithCircuitBreaker replaces the default breaker guarding the output
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(n *AudioNotifier) { n.breaker = cb }
}

// AudioNotifier plays a WAV clip through an audio output. At most one playback per
// notifier is in flight; Notify restarts the clip from the beginning.
type AudioNotifier struct {
	name    string
	clip    *audio.Clip
	volume  float64
	pcm     []byte // clip data with volume applied
	out     audio.Output
	logger  zerolog.Logger
	metrics *observability.Metrics
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAudioNotifierFromFile loads and validates a WAV file. A missing or malformed file
// is reported immediately.
func NewAudioNotifierFromFile(path string, volume float64, out audio.Output, opts ...Option) (*AudioNotifier, error) {
	clip, err := audio.LoadClip(path)
	if err != nil {
		return nil, err
	}
	return NewAudioNotifier(clip, volume, out, opts...)
}

// NewAudioNotifier creates a notifier for an already loaded clip. Volume is clamped to [0, 1].
func NewAudioNotifier(clip *audio.Clip, volume float64, out audio.Output, opts ...Option) (*AudioNotifier, error) {
	if clip == nil {
		return nil, fmt.Errorf("%w: nil clip", audio.ErrInvalidClip)
	}
	if out == nil {
		return nil, errors.New("audio output is required")
	}
	if err := clip.Format.Validate(); err != nil {
		return nil, err
	}

	n := &AudioNotifier{
		name:   "cue",
		clip:   clip,
		volume: audio.ClampVolume(volume),
		out:    out,
		logger: zerolog.Nop(),
		retry: &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.breaker == nil {
		n.breaker = resilience.NewCircuitBreaker(n.name+"_cue", 5, 30*time.Second,
			resilience.WithStateListener(func(name string, _, to resilience.CircuitState) {
				observability.UpdateCircuitBreakerState(name, int(to))
			}))
	}
	n.logger = n.logger.With().Str("component", "notifier").Str("cue", n.name).Logger()
	n.pcm = audio.ScaleVolume(clip.Data, clip.Format.SampleWidth, n.volume)

	n.logger.Debug().
		Int("channels", clip.Format.Channels).
		Int("sample_rate", clip.Format.SampleRate).
		Int("sample_width", clip.Format.SampleWidth).
		Dur("duration", clip.Duration()).
		Float64("rms", audio.CalculateRMS(audio.ToPCM16Mono(n.pcm, clip.Format))).
		Msg("Cue loaded")

	return n, nil
}

// Name returns the cue name
func (n *AudioNotifier) Name() string {
	return n.name
}

// Notify cancels the playback in flight, waits for it to stop, and starts the clip again.
// It does not wait for the new playback. The playback is not bound to ctx's cancellation.
func (n *AudioNotifier) Notify(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
		select {
		case <-n.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	n.cancel = cancel
	n.done = done

	go n.play(playCtx, done)

	return nil
}

// Wait blocks until the most recent playback finished or was cancelled
func (n *AudioNotifier) Wait(ctx context.Context) error {
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels any playback in flight and waits for it to end
func (n *AudioNotifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// play runs on its own goroutine so device writes never block the caller
func (n *AudioNotifier) play(ctx context.Context, done chan struct{}) {
	defer close(done)

	if !n.breaker.Allow() {
		n.logger.Warn().Msg("Output circuit open, skipping cue")
		n.metrics.RecordPlayback(n.name, resultSkipped)
		return
	}

	start := time.Now()
	err := n.playClip(ctx)

	switch {
	case err == nil:
		n.breaker.Success()
		n.metrics.RecordPlayback(n.name, resultCompleted)
		n.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Cue played")

	case ctx.Err() != nil:
		// Restarted or stopped, not a failure
		n.breaker.Release()
		n.metrics.RecordPlayback(n.name, resultCancelled)
		n.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Cue cancelled")

	default:
		n.breaker.Failure()
		observability.IncrementCircuitBreakerFailures(n.breaker.Name())
		n.metrics.RecordPlayback(n.name, resultFailed)
		n.metrics.RecordError("playback", "notifier")
		n.logger.Error().Err(err).Msg("Cue playback failed")
	}
}

func (n *AudioNotifier) playClip(ctx context.Context) error {
	var stream audio.Stream
	open := func(ctx context.Context) error {
		s, err := n.out.Open(ctx, n.clip.Format)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}
	if err := resilience.Retry(ctx, n.retry, open, isRetryableOpenError); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: open output: %w", ErrPlayback, err)
	}
	defer stream.Close()

	chunkBytes := ChunkFrames * n.clip.Format.FrameSize()
	for off := 0; off < len(n.pcm); off += chunkBytes {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := off + chunkBytes
		if end > len(n.pcm) {
			end = len(n.pcm)
		}
		if err := stream.Write(ctx, n.pcm[off:end]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrPlayback, err)
		}
	}

	return nil
}

func isRetryableOpenError(err error) bool {
	if resilience.IsRetryable(err) {
		return true
	}
	return !errors.Is(err, audio.ErrInvalidClip) && !errors.Is(err, audio.ErrDeviceUnavailable)
}
