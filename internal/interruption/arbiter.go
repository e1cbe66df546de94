package interruption

import (
	"sync"

	"github.com/lexiqai/wake-gate/internal/observability"
)

// Arbiter composes strategies for one conversation. An interruption is allowed when any
// strategy fires, or always when no strategy is configured.
type Arbiter struct {
	strategies []Strategy
	metrics    *observability.Metrics

	mu          sync.Mutex
	botSpeaking bool
}

// NewArbiter creates an arbiter over strategies. metrics may be nil.
func NewArbiter(strategies []Strategy, metrics *observability.Metrics) *Arbiter {
	return &Arbiter{strategies: strategies, metrics: metrics}
}

// AppendText feeds text to every strategy
func (a *Arbiter) AppendText(text string) {
	for _, s := range a.strategies {
		s.AppendText(text)
	}
}

// ShouldInterrupt reports whether any strategy fires
func (a *Arbiter) ShouldInterrupt() bool {
	if len(a.strategies) == 0 {
		return true
	}
	for _, s := range a.strategies {
		if s.ShouldInterrupt() {
			return true
		}
	}
	return false
}

// Reset clears every strategy
func (a *Arbiter) Reset() {
	for _, s := range a.strategies {
		s.Reset()
	}
}

// SetBotSpeaking records whether the bot is currently producing speech
func (a *Arbiter) SetBotSpeaking(speaking bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botSpeaking = speaking
}

// BotSpeaking reports the last value passed to SetBotSpeaking
func (a *Arbiter) BotSpeaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botSpeaking
}

// Evaluate decides whether bot speech should be cut off now. It is only ever true while the
// bot is speaking.
func (a *Arbiter) Evaluate() bool {
	if !a.BotSpeaking() {
		return false
	}

	interrupt := a.ShouldInterrupt()
	a.metrics.RecordInterruptionDecision(interrupt)
	return interrupt
}
