package phrase

import (
	"errors"
	"testing"
)

func TestCompile_Empty(t *testing.T) {
	for _, s := range []string{"", "   ", "\t\n"} {
		if _, err := Compile(s); !errors.Is(err, ErrEmptyPhrase) {
			t.Errorf("Compile(%q): expected ErrEmptyPhrase, got %v", s, err)
		}
	}
}

func TestPattern_String(t *testing.T) {
	p := MustCompile("  hey   robot ")
	if p.String() != "hey robot" {
		t.Errorf("Expected normalized phrase 'hey robot', got '%s'", p.String())
	}
}

func TestPattern_FindIndex(t *testing.T) {
	p := MustCompile("hey robot")

	tests := []struct {
		text string
		want []int
	}{
		{"hello hey robot how are", []int{6, 15}},
		{"HEY Robot", []int{0, 9}},
		{"hey    robot", []int{0, 12}},
		{"hey\trobot!", []int{0, 9}},
		{"heyrobot", []int{0, 8}},
		{"they robot", nil},
		{"hey robots", nil},
		{"hey rob", nil},
		{"oh they robot, hey robot", []int{15, 24}},
		{"", nil},
	}

	for _, tt := range tests {
		got := p.FindIndex(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("FindIndex(%q) = %v, expected %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("FindIndex(%q) = %v, expected %v", tt.text, got, tt.want)
				break
			}
		}
	}
}

func TestPattern_QuotesMetaCharacters(t *testing.T) {
	p := MustCompile("c++ now")
	if p.MatchString("cxx now") {
		t.Error("Expected metacharacters to be matched literally")
	}
	if !p.MatchString("write c++ now") {
		t.Error("Expected literal match of 'c++ now'")
	}
}

func TestPattern_Unicode(t *testing.T) {
	p := MustCompile("小白小白")

	if !p.MatchString("小白小白，你好") {
		t.Error("Expected match when the phrase is followed by punctuation")
	}
	if p.MatchString("你好小白小白") {
		t.Error("Expected no match when the phrase is glued to preceding letters")
	}

	accents := MustCompile("écoute moi")
	if !accents.MatchString("ÉCOUTE MOI maintenant") {
		t.Error("Expected case-insensitive match of non-ASCII letters")
	}
}

func TestCompileAll(t *testing.T) {
	patterns, err := CompileAll([]string{"hey robot", "ok computer"})
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("Expected 2 patterns, got %d", len(patterns))
	}
	if patterns[1].String() != "ok computer" {
		t.Errorf("Expected order to be preserved, got %s", patterns[1])
	}

	if _, err := CompileAll([]string{"hey robot", " "}); err == nil {
		t.Error("Expected error when one phrase is empty")
	}
}
