// Package pipeline runs one translation request through the ASR, NMT, and
// TTS stages in order, retrying each stage call independently and surfacing
// partial results when a stage fails.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/metrics"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
	"github.com/samvaadcop/orchestrator/internal/retry"
)

// Result is the composite outcome of one pipeline run. Fields filled by
// stages that succeeded are always retained, even when a later stage failed.
type Result struct {
	Transcript   string
	DetectedLang language.Code
	Translation  string
	AudioBase64  string
	Duration     float64
	Confidence   conversation.Confidence
	Errors       []conversation.StageReport
	Elapsed      time.Duration
}

// Completed reports whether every stage that was supposed to run succeeded.
func (r Result) Completed() bool {
	return len(r.Errors) == 0
}

// Partial reports whether some but not all stages produced output.
func (r Result) Partial() bool {
	return !r.Completed() && (r.Transcript != "" || r.Translation != "")
}

// SourceLang returns the effective source language: the ASR-detected
// language when present, otherwise the declared one.
func (r Result) SourceLang(declared language.Code) language.Code {
	if r.DetectedLang != "" {
		return r.DetectedLang
	}
	return declared
}

// Sequencer drives the three stage calls. It holds no per-request state and
// is safe for reuse; the caller serializes runs via its single-flight gate.
type Sequencer struct {
	client contracts.Client
	policy retry.Policy
	log    *slog.Logger
	now    func() time.Time
}

// New builds a sequencer over client with the given per-stage retry policy.
func New(client contracts.Client, policy retry.Policy) *Sequencer {
	return &Sequencer{
		client: client,
		policy: policy,
		log:    slog.Default(),
		now:    time.Now,
	}
}

// WithLogger replaces the sequencer logger.
func (s *Sequencer) WithLogger(log *slog.Logger) *Sequencer {
	s.log = log
	return s
}

// Run executes the pipeline for one validated request. Stages run strictly
// in order; a failing stage stops advancement and the accumulated result is
// returned with the failure tagged by stage. Run never returns an error:
// the Result carries the classification.
func (s *Sequencer) Run(ctx context.Context, req conversation.Request) Result {
	start := s.now()
	var res Result
	defer func() {
		res.Elapsed = s.now().Sub(start)
	}()

	text := req.Text
	sourceLang := req.SourceLang

	if req.AudioBase64 != "" {
		s.log.Debug("starting asr", "sourceLang", sourceLang)
		var asr contracts.TranscribeResult
		err := s.timedStage(ctx, contracts.StageASR, func(ctx context.Context) error {
			var stageErr error
			asr, stageErr = s.client.Transcribe(ctx, req.AudioBase64, sourceLang)
			return stageErr
		})
		if err != nil {
			res.Errors = append(res.Errors, s.stageReport(contracts.StageASR, err))
			return res
		}
		res.Transcript = asr.Transcript
		res.Confidence.ASR = ptr(asr.Confidence)
		text = asr.Transcript
		if asr.DetectedLang != "" && asr.DetectedLang != sourceLang {
			// The provider's detected language supersedes the declared one
			// for the rest of this request.
			res.DetectedLang = asr.DetectedLang
			sourceLang = asr.DetectedLang
		}
		s.log.Debug("asr completed", "transcript", asr.Transcript, "confidence", asr.Confidence)
	}

	if text != "" && sourceLang != req.TargetLang {
		s.log.Debug("starting translation", "sourceLang", sourceLang, "targetLang", req.TargetLang)
		var nmt contracts.TranslateResult
		err := s.timedStage(ctx, contracts.StageTranslation, func(ctx context.Context) error {
			var stageErr error
			nmt, stageErr = s.client.Translate(ctx, text, sourceLang, req.TargetLang)
			return stageErr
		})
		if err != nil {
			res.Errors = append(res.Errors, s.stageReport(contracts.StageTranslation, err))
			return res
		}
		res.Translation = nmt.Translation
		res.Confidence.Translation = ptr(nmt.Confidence)
		s.log.Debug("translation completed", "translation", nmt.Translation, "confidence", nmt.Confidence)
	} else {
		// Identity pass-through: same language on both sides, no provider
		// call is made.
		res.Translation = text
		res.Confidence.Translation = ptr(1.0)
	}

	if res.Translation != "" {
		s.log.Debug("starting tts", "lang", req.TargetLang)
		var tts contracts.SynthesizeResult
		err := s.timedStage(ctx, contracts.StageTTS, func(ctx context.Context) error {
			var stageErr error
			tts, stageErr = s.client.Synthesize(ctx, res.Translation, req.TargetLang)
			return stageErr
		})
		if err != nil {
			res.Errors = append(res.Errors, s.stageReport(contracts.StageTTS, err))
			return res
		}
		res.AudioBase64 = tts.AudioBase64
		res.Duration = tts.Duration
		s.log.Debug("tts completed", "duration", tts.Duration)
	}

	return res
}

// timedStage applies the retry policy to one stage call and records its
// latency and failure metrics under the stage label.
func (s *Sequencer) timedStage(ctx context.Context, stage contracts.Stage, fn func(ctx context.Context) error) error {
	stageStart := s.now()
	err := s.policy.Do(ctx, fn)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(s.now().Sub(stageStart).Seconds())
	if err != nil {
		metrics.StageFailures.WithLabelValues(string(stage)).Inc()
		s.log.Warn("stage failed after retries", "stage", stage, "error", err)
	}
	return err
}

// stageReport tags a failure with its stage. The tag recorded at the point
// of failure wins; fallback names the stage being attempted when the error
// carries no tag of its own.
func (s *Sequencer) stageReport(fallback contracts.Stage, err error) conversation.StageReport {
	stage := fallback
	var stageErr *contracts.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}
	return conversation.StageReport{
		Stage:   string(stage),
		Message: err.Error(),
		At:      s.now(),
	}
}

func ptr(v float64) *float64 {
	return &v
}
