// Package conversation defines the shared message contracts exchanged
// between the pipeline, the store, the offline queue, and the HTTP surface.
package conversation

import (
	"fmt"
	"time"

	"github.com/samvaadcop/orchestrator/internal/language"
)

// Sender identifies which side of the desk produced a message.
type Sender string

const (
	SenderCitizen Sender = "citizen"
	SenderOfficer Sender = "officer"
)

// Validate enforces the closed sender set.
func (s Sender) Validate() error {
	switch s {
	case SenderCitizen, SenderOfficer:
		return nil
	default:
		return fmt.Errorf("unknown sender %q", s)
	}
}

// Status is the lifecycle state of a conversation message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusOffline    Status = "offline"
)

// Terminal reports whether a status ends the message lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Confidence carries per-stage provider confidence scores in [0,1].
// A nil field means the stage did not run.
type Confidence struct {
	ASR         *float64 `json:"asr,omitempty"`
	Translation *float64 `json:"translation,omitempty"`
}

// StageReport is one stage-tagged failure attached to a message. The stage
// is recorded at the point of failure, never inferred from the error text.
type StageReport struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"timestamp"`
}

// Message is one entry in the conversation log. Identity and ordering are
// owned by the store; everything else is patched in by the pipeline.
type Message struct {
	ID                 string        `json:"id"`
	Timestamp          time.Time     `json:"timestamp"`
	Sender             Sender        `json:"sender"`
	OriginalText       string        `json:"originalText"`
	OriginalLanguage   language.Code `json:"originalLanguage"`
	TranslatedText     string        `json:"translatedText,omitempty"`
	TranslatedLanguage language.Code `json:"translatedLanguage,omitempty"`
	AudioOut           string        `json:"audioOut,omitempty"`
	Confidence         Confidence    `json:"confidence"`
	Status             Status        `json:"status"`
	Errors             []StageReport `json:"errors,omitempty"`
}

// Request is a translation submission after boundary validation. Exactly one
// of AudioBase64/Text is the primary input at submission time; Text may also
// be derived from audio mid-pipeline.
type Request struct {
	AudioBase64 string        `json:"audioBase64,omitempty"`
	Text        string        `json:"text,omitempty"`
	SourceLang  language.Code `json:"sourceLang"`
	TargetLang  language.Code `json:"targetLang"`
}

// ValidationError rejects a submission before it enters the pipeline.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a boundary rejection.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate rejects requests missing languages or missing both inputs.
func (r Request) Validate() error {
	if r.SourceLang == "" || r.TargetLang == "" {
		return NewValidationError("sourceLang and targetLang are required")
	}
	if err := language.Validate(r.SourceLang); err != nil {
		return NewValidationError("sourceLang: %v", err)
	}
	if err := language.Validate(r.TargetLang); err != nil {
		return NewValidationError("targetLang: %v", err)
	}
	if r.AudioBase64 == "" && r.Text == "" {
		return NewValidationError("either audioBase64 or text must be provided")
	}
	return nil
}
