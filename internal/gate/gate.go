// Package gate filters a multi-participant transcription stream with wake and idle phrases.
//
// Every participant starts idle. Text from an idle participant is dropped until one of the
// wake phrases appears in the text accumulated since the last transition; the participant
// is then awake and its text is forwarded until an idle phrase appears or, when a wake
// timeout is configured, it has been silent for that long.
//
// All participant state is owned by one goroutine per Gate. Process calls and watchdog
// ticks are handled on that goroutine in arrival order.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wake-gate/internal/notify"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/phrase"
	"github.com/lexiqai/wake-gate/internal/stt"
)

// ErrClosed is returned by calls made after Close
var ErrClosed = errors.New("gate closed")

// DefaultTickInterval is how often the watchdog scans participants
const DefaultTickInterval = time.Second

// Transition causes
const (
	causePhrase  = "phrase"
	causeTimeout = "timeout"
)

// ErrorFrame reports a failure to handle one event
type ErrorFrame struct {
	Message string `json:"message"`
}

// Downstream receives the gate's output
type Downstream interface {
	Push(ctx context.Context, t stt.Transcription) error
	PushError(ctx context.Context, f ErrorFrame) error
}

// ProcessingError is a failure while handling one participant's event
type ProcessingError struct {
	ParticipantID string
	Err           error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to process transcription for participant %q: %v", e.ParticipantID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Config configures a Gate
type Config struct {
	WakePhrases []string
	IdlePhrases []string

	// Optional cues. A wake notifier replaces the wake phrase in the forwarded text;
	// an idle notifier suppresses the event that contained the idle phrase.
	WakeNotifier notify.Notifier
	IdleNotifier notify.Notifier

	// WakeTimeout returns silent awake participants to idle. Zero disables it.
	WakeTimeout  time.Duration
	TickInterval time.Duration

	// MaxAccumulatorRunes bounds the text kept per participant. Zero means unbounded.
	MaxAccumulatorRunes int
	// ParticipantTTL forgets idle participants silent for this long. Zero disables it.
	ParticipantTTL time.Duration

	Metrics *observability.Metrics
}

type request struct {
	fn   func()
	done chan struct{}
}

// Gate is the per-participant wake/idle state machine
type Gate struct {
	cfg     Config
	wake    []*phrase.Pattern
	idle    []*phrase.Pattern
	down    Downstream
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	requests  chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by run
	participants map[string]*participant
}

// New validates cfg and starts the gate's goroutine
func New(cfg Config, down Downstream, logger zerolog.Logger) (*Gate, error) {
	if down == nil {
		return nil, errors.New("gate downstream is required")
	}

	wake, err := phrase.CompileAll(cfg.WakePhrases)
	if err != nil {
		return nil, fmt.Errorf("invalid wake phrase: %w", err)
	}
	idle, err := phrase.CompileAll(cfg.IdlePhrases)
	if err != nil {
		return nil, fmt.Errorf("invalid idle phrase: %w", err)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	g := &Gate{
		cfg:          cfg,
		wake:         wake,
		idle:         idle,
		down:         down,
		logger:       logger.With().Str("component", "gate").Logger(),
		metrics:      cfg.Metrics,
		now:          time.Now,
		requests:     make(chan request),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		participants: make(map[string]*participant),
	}

	g.logger.Info().
		Strs("wake_phrases", cfg.WakePhrases).
		Strs("idle_phrases", cfg.IdlePhrases).
		Dur("wake_timeout", cfg.WakeTimeout).
		Bool("wake_cue", cfg.WakeNotifier != nil).
		Bool("idle_cue", cfg.IdleNotifier != nil).
		Msg("Gate started")

	go g.run()

	return g, nil
}

func (g *Gate) run() {
	defer close(g.done)

	var tick <-chan time.Time
	if g.cfg.WakeTimeout > 0 || g.cfg.ParticipantTTL > 0 {
		ticker := time.NewTicker(g.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-g.quit:
			return
		case req := <-g.requests:
			req.fn()
			close(req.done)
		case <-tick:
			g.sweep()
		}
	}
}

// do runs fn on the gate's goroutine and waits for it
func (g *Gate) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}

	select {
	case g.requests <- req:
	case <-g.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process handles one transcription event. Failures while handling the event are
// reported through Downstream.PushError; the returned error is only ErrClosed or a
// context error.
func (g *Gate) Process(ctx context.Context, t stt.Transcription) error {
	return g.do(ctx, func() { g.handle(ctx, t) })
}

// State returns a participant's current state
func (g *Gate) State(ctx context.Context, participantID string) (State, bool, error) {
	var (
		state State
		found bool
	)
	err := g.do(ctx, func() {
		if p, ok := g.participants[participantID]; ok {
			state, found = p.state, true
		}
	})
	return state, found, err
}

// Snapshot copies every participant record
func (g *Gate) Snapshot(ctx context.Context) (map[string]ParticipantSnapshot, error) {
	snap := make(map[string]ParticipantSnapshot)
	err := g.do(ctx, func() {
		for id, p := range g.participants {
			snap[id] = ParticipantSnapshot{State: p.state, Accumulator: p.text, LastActivity: p.lastActivity}
		}
	})
	return snap, err
}

// Close stops the gate and its watchdog and waits for them. It is safe to call more than once.
func (g *Gate) Close() error {
	g.closeOnce.Do(func() {
		close(g.quit)
		<-g.done

		g.metrics.AddParticipants(-len(g.participants))
		g.logger.Info().Int("participants", len(g.participants)).Msg("Gate stopped")
	})
	<-g.done
	return nil
}

func (g *Gate) handle(ctx context.Context, t stt.Transcription) {
	defer func() {
		if r := recover(); r != nil {
			g.fail(ctx, t.ParticipantID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := g.process(ctx, t); err != nil {
		g.fail(ctx, t.ParticipantID, err)
	}
}

func (g *Gate) process(ctx context.Context, t stt.Transcription) error {
	p := g.participant(t.ParticipantID)
	p.lastActivity = g.now()
	p.append(t.Text, g.cfg.MaxAccumulatorRunes)

	switch p.state {
	case Awake:
		for _, pat := range g.idle {
			if !pat.MatchString(p.text) {
				continue
			}

			g.transition(t.ParticipantID, p, Idle, causePhrase, pat)
			if g.cfg.IdleNotifier != nil {
				if err := g.cfg.IdleNotifier.Notify(ctx); err != nil {
					return fmt.Errorf("idle notifier: %w", err)
				}
				g.metrics.RecordEvent(observability.OutcomeSuppressed)
				return nil
			}
			return g.forward(ctx, t, observability.OutcomeForwarded)
		}
		return g.forward(ctx, t, observability.OutcomeForwarded)

	case Idle:
		for _, pat := range g.wake {
			loc := pat.FindIndex(p.text)
			if loc == nil {
				continue
			}

			text := p.text
			g.transition(t.ParticipantID, p, Awake, causePhrase, pat)

			if g.cfg.WakeNotifier != nil {
				if err := g.cfg.WakeNotifier.Notify(ctx); err != nil {
					return fmt.Errorf("wake notifier: %w", err)
				}
				remainder := strings.TrimSpace(text[loc[1]:])
				if remainder == "" {
					g.metrics.RecordEvent(observability.OutcomeSuppressed)
					return nil
				}
				return g.forward(ctx, t.WithText(remainder), observability.OutcomeRewritten)
			}
			return g.forward(ctx, t.WithText(text[loc[0]:]), observability.OutcomeRewritten)
		}

		g.metrics.RecordEvent(observability.OutcomeDropped)
	}

	return nil
}

func (g *Gate) participant(id string) *participant {
	p, ok := g.participants[id]
	if !ok {
		p = &participant{state: Idle}
		g.participants[id] = p
		g.metrics.AddParticipants(1)
		g.logger.Debug().Str("participant_id", id).Msg("Tracking new participant")
	}
	return p
}

func (g *Gate) transition(id string, p *participant, to State, cause string, pat *phrase.Pattern) {
	from := p.state
	p.state = to
	p.text = ""

	g.metrics.RecordTransition(from.String(), to.String(), cause)

	ev := g.logger.Info().
		Str("participant_id", id).
		Stringer("from", from).
		Stringer("to", to).
		Str("cause", cause)
	if pat != nil {
		ev = ev.Stringer("phrase", pat)
	}
	ev.Msg("Participant state changed")
}

func (g *Gate) forward(ctx context.Context, t stt.Transcription, outcome string) error {
	if err := g.down.Push(ctx, t); err != nil {
		return fmt.Errorf("push downstream: %w", err)
	}
	g.metrics.RecordEvent(outcome)
	return nil
}

func (g *Gate) fail(ctx context.Context, participantID string, err error) {
	perr := &ProcessingError{ParticipantID: participantID, Err: err}

	g.logger.Error().Err(err).Str("participant_id", participantID).Msg("Failed to process transcription")
	g.metrics.RecordEvent(observability.OutcomeError)
	g.metrics.RecordError("processing", "gate")

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("Downstream panicked while reporting an error")
		}
	}()
	if pushErr := g.down.PushError(ctx, ErrorFrame{Message: perr.Error()}); pushErr != nil {
		g.logger.Error().Err(pushErr).Msg("Failed to push error frame")
	}
}

// sweep applies the wake timeout and participant eviction
func (g *Gate) sweep() {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("Watchdog sweep failed")
			g.metrics.RecordError("watchdog", "gate")
		}
	}()

	now := g.now()
	for id, p := range g.participants {
		if p.state == Awake && g.cfg.WakeTimeout > 0 && now.Sub(p.lastActivity) >= g.cfg.WakeTimeout {
			g.transition(id, p, Idle, causeTimeout, nil)

			if g.cfg.IdleNotifier != nil {
				if err := g.cfg.IdleNotifier.Notify(context.Background()); err != nil {
					g.logger.Error().Err(err).Str("participant_id", id).Msg("Idle notifier failed")
					g.metrics.RecordError("notify", "gate")
				}
			}
		}

		if p.state == Idle && g.cfg.ParticipantTTL > 0 && now.Sub(p.lastActivity) >= g.cfg.ParticipantTTL {
			delete(g.participants, id)
			g.metrics.AddParticipants(-1)
			g.logger.Debug().Str("participant_id", id).Msg("Evicted inactive participant")
		}
	}
}
