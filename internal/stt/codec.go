package stt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single JSONL record
const maxLineSize = 1 << 20

// Reader decodes newline-delimited JSON transcription events
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a JSONL transcription reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the input is exhausted.
// Blank lines and lines starting with '#' are skipped.
func (r *Reader) Next() (Transcription, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var t Transcription
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return Transcription{}, fmt.Errorf("line %d: failed to parse transcription: %w", r.line, err)
		}
		return t, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Transcription{}, fmt.Errorf("failed to read transcriptions: %w", err)
	}
	return Transcription{}, io.EOF
}

// Writer encodes transcription events as newline-delimited JSON
type Writer struct {
	enc *json.Encoder
}

// NewWriter creates a JSONL transcription writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes one event followed by a newline
func (w *Writer) Write(t Transcription) error {
	if err := w.enc.Encode(t); err != nil {
		return fmt.Errorf("failed to write transcription: %w", err)
	}
	return nil
}
