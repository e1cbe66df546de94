package interruption

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestFromConfig(t *testing.T) {
	strategies := FromConfig([]Config{
		{Type: TypeKeyword, Keywords: []string{"stop"}},
		{Type: TypeKeyword},
		{Type: TypeMinWords},
		{Type: TypeMinWords, MinWords: 5},
		{Type: TypeNever},
		{Type: "telepathy"},
	}, zerolog.Nop())

	if len(strategies) != 4 {
		t.Fatalf("Expected 4 strategies, got %d", len(strategies))
	}

	if _, ok := strategies[0].(*Keyword); !ok {
		t.Errorf("Expected first strategy to be *Keyword, got %T", strategies[0])
	}

	m, ok := strategies[1].(*MinWords)
	if !ok {
		t.Fatalf("Expected second strategy to be *MinWords, got %T", strategies[1])
	}
	if m.minWords != DefaultMinWords {
		t.Errorf("Expected default min words %d, got %d", DefaultMinWords, m.minWords)
	}

	if m := strategies[2].(*MinWords); m.minWords != 5 {
		t.Errorf("Expected min words 5, got %d", m.minWords)
	}

	if _, ok := strategies[3].(Never); !ok {
		t.Errorf("Expected fourth strategy to be Never, got %T", strategies[3])
	}
}

func TestFromConfig_InvalidKeywordSkipped(t *testing.T) {
	strategies := FromConfig([]Config{{Type: TypeKeyword, Keywords: []string{"  "}}}, zerolog.Nop())
	if len(strategies) != 0 {
		t.Errorf("Expected invalid keyword strategy to be skipped, got %d strategies", len(strategies))
	}
}
