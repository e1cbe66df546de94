package stt

import "time"

// Transcription is a partial or final transcription event for one speaking participant
type Transcription struct {
	// ParticipantID identifies the speaker the text belongs to.
	// Local transports leave it empty; the empty ID is a participant like any other.
	ParticipantID string `json:"participant_id"`

	// Text is the transcribed text
	Text string `json:"text"`

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool `json:"is_final"`

	// Timestamp is when the upstream STT stage produced the event
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// WithText returns a copy of the event carrying different text
func (t Transcription) WithText(text string) Transcription {
	t.Text = text
	return t
}
