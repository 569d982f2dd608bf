// Package contracts defines the language-service client interface and the
// stage-tagged error taxonomy shared by every provider adapter.
package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/samvaadcop/orchestrator/internal/language"
)

// Stage names one step of the translation pipeline, plus the compute-service
// resolution call that precedes each provider invocation.
type Stage string

const (
	StageResolve     Stage = "resolve"
	StageASR         Stage = "asr"
	StageTranslation Stage = "translation"
	StageTTS         Stage = "tts"
)

// Validate enforces the closed stage set.
func (s Stage) Validate() error {
	switch s {
	case StageResolve, StageASR, StageTranslation, StageTTS:
		return nil
	default:
		return fmt.Errorf("unknown stage %q", s)
	}
}

// StageError tags a provider failure with the stage it occurred in. The tag
// is attached at the point of failure so callers never classify failures by
// inspecting error text.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with a stage tag. A nil err yields nil.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// NetworkError marks a transport-level failure, as opposed to a provider
// returning an error response. It is always found inside a StageError.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DefaultConfidence is substituted when the provider omits a score.
const DefaultConfidence = 0.8

// ClampConfidence forces a provider-reported score into [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TranscribeResult is the ASR stage output. DetectedLang is empty unless the
// provider reported a source language different from the declared one.
type TranscribeResult struct {
	Transcript   string
	DetectedLang language.Code
	Confidence   float64
}

// TranslateResult is the NMT stage output.
type TranslateResult struct {
	Translation string
	Confidence  float64
}

// SynthesizeResult is the TTS stage output. AudioBase64 is base64 WAV.
type SynthesizeResult struct {
	AudioBase64 string
	Duration    float64
}

// ProbeResult reports provider liveness.
type ProbeResult struct {
	Up      bool
	Latency time.Duration
}

// Client is the stateless adapter to the external language-service provider.
// Every operation except Probe fails with a *StageError; Probe converts any
// failure into Up=false and never returns an error.
type Client interface {
	Transcribe(ctx context.Context, audioBase64 string, sourceLang language.Code) (TranscribeResult, error)
	Translate(ctx context.Context, text string, sourceLang, targetLang language.Code) (TranslateResult, error)
	Synthesize(ctx context.Context, text string, lang language.Code) (SynthesizeResult, error)
	Probe(ctx context.Context) ProbeResult
}
