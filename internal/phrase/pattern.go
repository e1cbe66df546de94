// Package phrase matches spoken trigger phrases against transcribed text.
//
// A phrase is a sequence of words. Matching ignores case, tolerates any amount of
// whitespace between words (including none, since STT engines sometimes glue words
// together) and only accepts matches that start and end on a word boundary.
package phrase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrEmptyPhrase is returned when a phrase contains no words
var ErrEmptyPhrase = errors.New("phrase has no words")

// Pattern is an immutable matcher built from one phrase
type Pattern struct {
	phrase string
	re     *regexp.Regexp
}

// Compile builds a Pattern from a whitespace separated phrase
func Compile(phrase string) (*Pattern, error) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPhrase, phrase)
	}

	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}

	re, err := regexp.Compile(`(?i)` + strings.Join(quoted, `[\s\p{Z}]*`))
	if err != nil {
		return nil, fmt.Errorf("failed to compile phrase %q: %w", phrase, err)
	}

	return &Pattern{phrase: strings.Join(words, " "), re: re}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(phrase string) *Pattern {
	p, err := Compile(phrase)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileAll compiles phrases in order
func CompileAll(phrases []string) ([]*Pattern, error) {
	patterns := make([]*Pattern, 0, len(phrases))
	for _, s := range phrases {
		p, err := Compile(s)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// String returns the normalized phrase
func (p *Pattern) String() string {
	return p.phrase
}

// FindIndex returns the byte offsets [start, end) of the leftmost match in text,
// or nil if the phrase does not occur on word boundaries.
func (p *Pattern) FindIndex(text string) []int {
	offset := 0
	for offset <= len(text) {
		loc := p.re.FindStringIndex(text[offset:])
		if loc == nil {
			return nil
		}

		start, end := offset+loc[0], offset+loc[1]
		if isBoundary(text, start) && isBoundary(text, end) {
			return []int{start, end}
		}

		// Retry one rune further along
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			return nil
		}
		offset = start + size
	}
	return nil
}

// MatchString reports whether the phrase occurs in text
func (p *Pattern) MatchString(text string) bool {
	return p.FindIndex(text) != nil
}

// isBoundary reports whether byte offset i of text sits between a word and a non-word rune
func isBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = IsWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = IsWordRune(r)
	}
	return before != after
}

// IsWordRune reports whether r is part of a word for phrase matching
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
