package session

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/config"
)

func testConfig(output string) *config.Config {
	return &config.Config{
		GateTickIntervalMs:          20,
		GateMaxAccumulatorRunes:     2048,
		CueOutput:                   output,
		CueEncoding:                 "pcm16",
		PlaybackRetryMaxAttempts:    1,
		PlaybackRetryInitialBackoff: 1,
		CircuitBreakerMaxFailures:   5,
		CircuitBreakerResetTimeout:  30,
	}
}

func testGateFile(t *testing.T, data string) *config.GateFile {
	t.Helper()
	f, err := config.ParseGateFile([]byte(data))
	if err != nil {
		t.Fatalf("ParseGateFile failed: %v", err)
	}
	return f
}

const gateYAML = `
wake_check:
  wake_words: ["hey robot"]
  idle_words: ["goodbye"]
interruption_strategies:
  - type: keyword
    params:
      keywords: ["stop now"]
`

const passThroughYAML = `
wake_check:
  enabled: false
interruption_strategies:
  - type: keyword
    params:
      keywords: ["stop now"]
`

func dial(t *testing.T, deps Dependencies) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(Handler(func() Dependencies { return deps }))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg InboundMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

// expectStart consumes the session message
func expectStart(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	msg := read(t, conn)
	if msg["type"] != TypeSession {
		t.Fatalf("Expected session message first, got %v", msg)
	}
	id, _ := msg["session_id"].(string)
	if id == "" {
		t.Error("Expected a session id")
	}
	return id
}

func TestSession_WakeAndIdle(t *testing.T) {
	conn := dial(t, Dependencies{
		Config: testConfig(config.CueOutputStream),
		Gate:   testGateFile(t, gateYAML),
	})
	expectStart(t, conn)

	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "alice", Text: "hello "})
	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "alice", Text: "hey robot what time", IsFinal: true})

	msg := read(t, conn)
	if msg["type"] != TypeTranscription {
		t.Fatalf("Expected transcription, got %v", msg)
	}
	if msg["text"] != "hey robot what time" {
		t.Errorf("Expected text from the wake phrase on, got %v", msg["text"])
	}
	if msg["participant_id"] != "alice" {
		t.Errorf("Expected participant alice, got %v", msg["participant_id"])
	}
	if msg["is_final"] != true {
		t.Errorf("Expected is_final to be kept, got %v", msg["is_final"])
	}

	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "alice", Text: "ok goodbye"})
	msg = read(t, conn)
	if msg["text"] != "ok goodbye" {
		t.Errorf("Expected idle event to be forwarded without an idle cue, got %v", msg)
	}

	// Idle again: this is dropped, so the next message is the error for the unknown type
	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "alice", Text: "still here"})
	send(t, conn, InboundMessage{Type: "bogus"})
	msg = read(t, conn)
	if msg["type"] != TypeError {
		t.Errorf("Expected error message, got %v", msg)
	}
}

func TestSession_WakeCueStreamed(t *testing.T) {
	format := audio.Format{Channels: 1, SampleWidth: 2, SampleRate: 16000}
	clip, err := audio.NewClip(format, make([]byte, 1600*format.FrameSize()))
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}

	conn := dial(t, Dependencies{
		Config: testConfig(config.CueOutputStream),
		Gate:   testGateFile(t, gateYAML),
		Cues:   &config.Cues{Wake: clip, Volume: 1},
	})
	expectStart(t, conn)

	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "bob", Text: "hey robot lights on"})

	var text string
	cueBytes := 0
	deadline := time.Now().Add(2 * time.Second)
	for (text == "" || cueBytes < 1600*2) && time.Now().Before(deadline) {
		msg := read(t, conn)
		switch msg["type"] {
		case TypeTranscription:
			text, _ = msg["text"].(string)
		case TypeCue:
			if msg["cue"] != "wake" {
				t.Errorf("Expected wake cue, got %v", msg["cue"])
			}
			if msg["encoding"] != "pcm16" {
				t.Errorf("Expected pcm16 encoding, got %v", msg["encoding"])
			}
			payload, _ := msg["payload"].(string)
			cueBytes += len(payload) * 3 / 4
		default:
			t.Fatalf("Unexpected message %v", msg)
		}
	}

	if text != "lights on" {
		t.Errorf("Expected wake phrase replaced by the cue, got %q", text)
	}
	if cueBytes < 1600*2 {
		t.Errorf("Expected the whole clip to be streamed, got %d bytes", cueBytes)
	}
}

func TestSession_Interrupt(t *testing.T) {
	conn := dial(t, Dependencies{
		Config: testConfig(config.CueOutputStream),
		Gate:   testGateFile(t, passThroughYAML),
	})
	expectStart(t, conn)

	// Bot silent: text passes through without an interruption
	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "carol", Text: "stop now"})
	msg := read(t, conn)
	if msg["type"] != TypeTranscription || msg["text"] != "stop now" {
		t.Fatalf("Expected pass-through transcription, got %v", msg)
	}
	send(t, conn, InboundMessage{Type: TypeUserStoppedSpeaking})

	send(t, conn, InboundMessage{Type: TypeBotStartedSpeaking})
	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "carol", Text: "please "})
	msg = read(t, conn)
	if msg["type"] != TypeTranscription {
		t.Fatalf("Expected transcription, got %v", msg)
	}

	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "carol", Text: "stop now"})
	msg = read(t, conn)
	if msg["type"] != TypeTranscription {
		t.Fatalf("Expected transcription, got %v", msg)
	}
	msg = read(t, conn)
	if msg["type"] != TypeInterrupt {
		t.Fatalf("Expected interrupt, got %v", msg)
	}
	if msg["participant_id"] != "carol" {
		t.Errorf("Expected interrupt for carol, got %v", msg["participant_id"])
	}

	// Strategies were reset by the interruption
	send(t, conn, InboundMessage{Type: TypeTranscription, ParticipantID: "carol", Text: "okay"})
	msg = read(t, conn)
	if msg["type"] != TypeTranscription {
		t.Fatalf("Expected transcription, got %v", msg)
	}
	send(t, conn, InboundMessage{Type: "bogus"})
	msg = read(t, conn)
	if msg["type"] != TypeError {
		t.Errorf("Expected no second interrupt, got %v", msg)
	}
}

func TestSession_InvalidMessage(t *testing.T) {
	conn := dial(t, Dependencies{
		Config: testConfig(config.CueOutputStream),
		Gate:   testGateFile(t, gateYAML),
	})
	expectStart(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msg := read(t, conn)
	if msg["type"] != TypeError {
		t.Fatalf("Expected error message, got %v", msg)
	}
	if !strings.Contains(msg["message"].(string), "invalid message") {
		t.Errorf("Expected invalid message error, got %v", msg["message"])
	}

	// The session keeps going
	send(t, conn, InboundMessage{Type: TypeTranscription, Text: "hey robot hi"})
	msg = read(t, conn)
	if msg["text"] != "hey robot hi" {
		t.Errorf("Expected transcription after the error, got %v", msg)
	}
}

func TestSession_DeviceUnavailable(t *testing.T) {
	format := audio.Format{Channels: 1, SampleWidth: 2, SampleRate: 16000}
	clip, _ := audio.NewClip(format, make([]byte, 64))

	conn := dial(t, Dependencies{
		Config: testConfig(config.CueOutputDevice),
		Gate:   testGateFile(t, gateYAML),
		Cues:   &config.Cues{Wake: clip, Volume: 1},
	})

	msg := read(t, conn)
	if msg["type"] != TypeError {
		t.Fatalf("Expected error message, got %v", msg)
	}
	if !strings.Contains(msg["message"].(string), "device") {
		t.Errorf("Expected device error, got %v", msg["message"])
	}
}

func TestSession_UniqueIDs(t *testing.T) {
	deps := Dependencies{
		Config: testConfig(config.CueOutputDiscard),
		Gate:   testGateFile(t, gateYAML),
	}

	first := expectStart(t, dial(t, deps))
	second := expectStart(t, dial(t, deps))

	if first == second {
		t.Errorf("Expected unique session ids, got %s twice", first)
	}
}
