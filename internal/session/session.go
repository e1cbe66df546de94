package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/config"
	"github.com/lexiqai/wake-gate/internal/gate"
	"github.com/lexiqai/wake-gate/internal/interruption"
	"github.com/lexiqai/wake-gate/internal/notify"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/stt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients are pipeline processes, not browsers
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// stopTimeout bounds how long closing a session waits for cue playback to stop
const stopTimeout = 2 * time.Second

// Message types
const (
	TypeSession             = "session"
	TypeTranscription       = "transcription"
	TypeError               = "error"
	TypeInterrupt           = "interrupt"
	TypeCue                 = "cue"
	TypeBotStartedSpeaking  = "bot_started_speaking"
	TypeBotStoppedSpeaking  = "bot_stopped_speaking"
	TypeUserStartedSpeaking = "user_started_speaking"
	TypeUserStoppedSpeaking = "user_stopped_speaking"
)

// InboundMessage is a message sent by the client
type InboundMessage struct {
	Type          string     `json:"type"`
	ParticipantID string     `json:"participant_id,omitempty"`
	Text          string     `json:"text,omitempty"`
	IsFinal       bool       `json:"is_final,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// TranscriptionMessage carries a transcription the gate let through
type TranscriptionMessage struct {
	Type string `json:"type"`
	stt.Transcription
}

// ErrorMessage reports a failure without closing the session
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// InterruptMessage asks the client to cut off bot speech
type InterruptMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
}

// CueMessage carries one chunk of encoded cue audio
type CueMessage struct {
	Type       string `json:"type"`
	Cue        string `json:"cue"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Payload    []byte `json:"payload"` // base64 in JSON
}

// StartMessage is the first message of every session
type StartMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// CorrelationHeader carries an optional caller supplied correlation id
const CorrelationHeader = "X-Correlation-ID"

// Dependencies are shared by every session of a server
type Dependencies struct {
	Config *config.Config
	Gate   *config.GateFile
	Cues   *config.Cues

	// Device is the shared sound card output, used when CUE_OUTPUT is device
	Device audio.Output
}

// Session is one websocket client: a gate, an interruption arbiter and the cue notifiers
type Session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	gate      *gate.Gate // nil when wake checking is disabled
	arbiter   *interruption.Arbiter
	notifiers []*notify.AudioNotifier

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Handler upgrades requests to websocket sessions. current is called once per connection,
// so a configuration reload applies to new sessions only.
func Handler(current func() Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Callers may pass their own id to tie gate logs to their pipeline
		logger := observability.WithCorrelationID(r.Header.Get(CorrelationHeader))
		deps := current()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		s, err := New(conn, deps, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create session")
			_ = conn.WriteJSON(ErrorMessage{Type: TypeError, Message: err.Error()})
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.Run(ctx)
	}
}

// New wires a session for conn. It does not start reading.
func New(conn *websocket.Conn, deps Dependencies, logger zerolog.Logger) (*Session, error) {
	id := uuid.New().String()
	metrics := observability.NewSessionMetrics(id)

	s := &Session{
		id:      id,
		conn:    conn,
		metrics: metrics,
		logger: logger.With().
			Str("component", "session").
			Str("session_id", id).
			Logger(),
	}

	s.arbiter = interruption.NewArbiter(interruption.FromConfig(deps.Gate.StrategyConfigs(), s.logger), metrics)

	if !deps.Gate.GateEnabled() {
		s.logger.Info().Msg("Wake check disabled, transcriptions pass through")
		return s, nil
	}

	gateCfg := gate.Config{
		WakePhrases:         deps.Gate.WakeCheck.WakeWords,
		IdlePhrases:         deps.Gate.WakeCheck.IdleWords,
		WakeTimeout:         deps.Gate.WakeTimeout(),
		TickInterval:        deps.Config.TickInterval(),
		MaxAccumulatorRunes: deps.Config.GateMaxAccumulatorRunes,
		ParticipantTTL:      deps.Config.ParticipantTTL(),
		Metrics:             metrics,
	}

	if deps.Cues != nil {
		wake, err := s.newNotifier("wake", deps.Cues.Wake, deps)
		if err != nil {
			return s, err
		}
		if wake != nil {
			gateCfg.WakeNotifier = wake
		}

		idle, err := s.newNotifier("idle", deps.Cues.Idle, deps)
		if err != nil {
			return s, err
		}
		if idle != nil {
			gateCfg.IdleNotifier = idle
		}
	}

	g, err := gate.New(gateCfg, s, s.logger)
	if err != nil {
		return s, fmt.Errorf("failed to create gate: %w", err)
	}
	s.gate = g

	return s, nil
}

// newNotifier returns nil for a cue without a clip
func (s *Session) newNotifier(cue string, clip *audio.Clip, deps Dependencies) (*notify.AudioNotifier, error) {
	if clip == nil {
		return nil, nil
	}

	var out audio.Output
	switch deps.Config.CueOutput {
	case config.CueOutputDevice:
		if deps.Device == nil {
			return nil, fmt.Errorf("%s cue: %w", cue, audio.ErrDeviceUnavailable)
		}
		out = deps.Device
	case config.CueOutputDiscard:
		out = audio.NewDiscardOutput(true)
	default:
		out = audio.NewStreamOutput(cue, deps.Config.Encoding(), s.sendCue, true)
	}

	n, err := notify.NewAudioNotifier(clip, deps.Cues.Volume, out,
		notify.WithName(cue),
		notify.WithLogger(s.logger),
		notify.WithMetrics(s.metrics),
		notify.WithRetryConfig(deps.Config.PlaybackRetryConfig()),
		notify.WithCircuitBreaker(deps.Config.NewCircuitBreaker(cue+"_cue")),
	)
	if err != nil {
		return nil, fmt.Errorf("%s cue: %w", cue, err)
	}

	s.notifiers = append(s.notifiers, n)
	return n, nil
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// Run announces the session and processes client messages until the connection closes
func (s *Session) Run(ctx context.Context) {
	s.metrics.RecordSessionStart()
	defer s.close()

	s.logger.Info().Msg("Session started")

	if err := s.writeJSON(StartMessage{Type: TypeSession, SessionID: s.id}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send session message")
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse message")
			s.metrics.RecordError("invalid_message", "session")
			s.sendError(fmt.Sprintf("invalid message: %v", err))
			continue
		}

		if err := s.handle(ctx, msg); err != nil {
			s.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to handle message")
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, msg InboundMessage) error {
	switch msg.Type {
	case TypeTranscription:
		t := stt.Transcription{
			ParticipantID: msg.ParticipantID,
			Text:          msg.Text,
			IsFinal:       msg.IsFinal,
			Timestamp:     time.Now(),
		}
		if msg.Timestamp != nil {
			t.Timestamp = *msg.Timestamp
		}

		if s.gate == nil {
			s.metrics.RecordEvent(observability.OutcomeForwarded)
			if err := s.Push(ctx, t); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to forward transcription")
			}
			return nil
		}
		return s.gate.Process(ctx, t)

	case TypeBotStartedSpeaking:
		s.arbiter.SetBotSpeaking(true)
		s.arbiter.Reset()

	case TypeBotStoppedSpeaking:
		s.arbiter.SetBotSpeaking(false)
		s.arbiter.Reset()

	case TypeUserStartedSpeaking:
		s.logger.Debug().Msg("User started speaking")

	case TypeUserStoppedSpeaking:
		s.arbiter.Reset()

	default:
		s.logger.Warn().Str("type", msg.Type).Msg("Unknown message type")
		s.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	return nil
}

// Push implements gate.Downstream. The text also feeds the interruption strategies.
func (s *Session) Push(ctx context.Context, t stt.Transcription) error {
	if err := s.writeJSON(TranscriptionMessage{Type: TypeTranscription, Transcription: t}); err != nil {
		return fmt.Errorf("failed to send transcription: %w", err)
	}

	if t.Text == "" {
		return nil
	}
	s.arbiter.AppendText(t.Text)

	if !s.arbiter.Evaluate() {
		return nil
	}
	s.arbiter.Reset()

	s.logger.Info().Str("participant_id", t.ParticipantID).Msg("Interrupting bot speech")
	if err := s.writeJSON(InterruptMessage{Type: TypeInterrupt, ParticipantID: t.ParticipantID}); err != nil {
		return fmt.Errorf("failed to send interrupt: %w", err)
	}
	return nil
}

// PushError implements gate.Downstream
func (s *Session) PushError(ctx context.Context, frame gate.ErrorFrame) error {
	return s.writeJSON(ErrorMessage{Type: TypeError, Message: frame.Message})
}

func (s *Session) sendCue(ctx context.Context, chunk audio.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeJSON(CueMessage{
		Type:       TypeCue,
		Cue:        chunk.Cue,
		Encoding:   string(chunk.Encoding),
		SampleRate: chunk.SampleRate,
		Payload:    chunk.Payload,
	})
}

func (s *Session) sendError(message string) {
	if err := s.writeJSON(ErrorMessage{Type: TypeError, Message: message}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send error message")
	}
}

// writeJSON serializes writes from the reader, the gate and the cue players
func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) close() {
	if s.gate != nil {
		if err := s.gate.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing gate")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for _, n := range s.notifiers {
		if err := n.Stop(ctx); err != nil {
			s.logger.Warn().Err(err).Str("cue", n.Name()).Msg("Error stopping cue")
		}
	}

	s.metrics.RecordSessionEnd()
	s.logger.Info().Msg("Session ended")
}
