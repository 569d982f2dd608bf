// Package provider composes language-service adapters into the single
// client the pipeline consumes.
package provider

import (
	"context"

	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

// Synthesizer is the TTS-only slice of contracts.Client, implemented by
// fallback speech providers.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang language.Code) (contracts.SynthesizeResult, error)
}

type withSynthesizer struct {
	contracts.Client
	tts Synthesizer
}

// WithSynthesizer returns a client identical to base except that the TTS
// stage is served by tts.
func WithSynthesizer(base contracts.Client, tts Synthesizer) contracts.Client {
	if tts == nil {
		return base
	}
	return &withSynthesizer{Client: base, tts: tts}
}

func (c *withSynthesizer) Synthesize(ctx context.Context, text string, lang language.Code) (contracts.SynthesizeResult, error) {
	return c.tts.Synthesize(ctx, text, lang)
}
