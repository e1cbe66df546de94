// Package interruption decides whether in-progress user speech should cut off bot speech.
package interruption

import (
	"strings"
	"sync"

	"github.com/lexiqai/wake-gate/internal/phrase"
)

// Strategy accumulates the text of one user utterance and decides whether it should
// interrupt the bot. Implementations are safe for concurrent use.
type Strategy interface {
	// AppendText adds newly transcribed text to the current utterance
	AppendText(text string)
	// ShouldInterrupt reports whether the accumulated text warrants an interruption
	ShouldInterrupt() bool
	// Reset clears the accumulated text for the next utterance
	Reset()
}

// textBuffer is the utterance state shared by the text based strategies
type textBuffer struct {
	mu   sync.Mutex
	text strings.Builder
}

func (b *textBuffer) AppendText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(text)
}

func (b *textBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.Reset()
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

// Keyword interrupts once any of its keyword phrases has been spoken
type Keyword struct {
	textBuffer
	patterns []*phrase.Pattern
}

// NewKeyword creates a keyword strategy. Keywords follow the same matching rules as wake phrases.
func NewKeyword(keywords []string) (*Keyword, error) {
	patterns, err := phrase.CompileAll(keywords)
	if err != nil {
		return nil, err
	}
	return &Keyword{patterns: patterns}, nil
}

// ShouldInterrupt implements Strategy
func (k *Keyword) ShouldInterrupt() bool {
	text := k.String()
	for _, p := range k.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// MinWords interrupts once the utterance reaches a word count
type MinWords struct {
	textBuffer
	minWords int
}

// NewMinWords creates a word count strategy
func NewMinWords(minWords int) *MinWords {
	return &MinWords{minWords: minWords}
}

// ShouldInterrupt implements Strategy
func (m *MinWords) ShouldInterrupt() bool {
	return len(strings.Fields(m.String())) >= m.minWords
}

// Never never interrupts
type Never struct{}

func (Never) AppendText(string)     {}
func (Never) ShouldInterrupt() bool { return false }
func (Never) Reset()                {}
