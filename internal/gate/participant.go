package gate

import (
	"time"
	"unicode/utf8"

	"github.com/lexiqai/wake-gate/internal/phrase"
)

// State is the gating state of one participant
type State int

const (
	// Idle participants are ignored until they say a wake phrase
	Idle State = iota
	// Awake participants are forwarded until they say an idle phrase or time out
	Awake
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Awake:
		return "awake"
	}
	return "unknown"
}

// participant is owned by the gate's run goroutine and never shared
type participant struct {
	state        State
	text         string
	lastActivity time.Time
}

// append adds text to the accumulator, keeping at most maxRunes of the newest runes
func (p *participant) append(text string, maxRunes int) {
	p.text += text
	if maxRunes <= 0 {
		return
	}

	excess := utf8.RuneCountInString(p.text) - maxRunes
	if excess <= 0 {
		return
	}

	cut := 0
	for i := 0; i < excess; i++ {
		_, size := utf8.DecodeRuneInString(p.text[cut:])
		cut += size
	}

	// Never start mid-word, or the tail of a cut word could match as a phrase
	if prev, _ := utf8.DecodeLastRuneInString(p.text[:cut]); phrase.IsWordRune(prev) {
		for cut < len(p.text) {
			r, size := utf8.DecodeRuneInString(p.text[cut:])
			if !phrase.IsWordRune(r) {
				break
			}
			cut += size
		}
	}
	p.text = p.text[cut:]
}

// ParticipantSnapshot is a copy of one participant's record
type ParticipantSnapshot struct {
	State        State
	Accumulator  string
	LastActivity time.Time
}
