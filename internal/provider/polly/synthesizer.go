// Package polly adapts Amazon Polly as a fallback text-to-speech stage for
// deployments where the primary provider has no TTS capacity for a language.
package polly

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config configures the Polly synthesizer.
type Config struct {
	Region  string
	Engine  string
	Timeout time.Duration
}

// ConfigFromEnv reads SAMVAAD_TTS_POLLY_* settings with sensible defaults.
func ConfigFromEnv() Config {
	return Config{
		Region:  defaultString(os.Getenv("SAMVAAD_TTS_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "ap-south-1")),
		Engine:  defaultString(os.Getenv("SAMVAAD_TTS_POLLY_ENGINE"), "neural"),
		Timeout: 15 * time.Second,
	}
}

// voices maps supported kiosk languages to Polly voice ids. Languages Polly
// does not cover are absent and produce a tts stage error.
var voices = map[language.Code]pollytypes.VoiceId{
	language.Hindi:   pollytypes.VoiceIdKajal,
	language.English: pollytypes.VoiceIdJoanna,
}

// Synthesizer synthesizes speech through Amazon Polly. It satisfies the
// Synthesize operation of contracts.Client and is composed over the primary
// provider via provider.WithSynthesizer.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

// New builds a synthesizer with cfg. The AWS client is resolved lazily on
// first use so construction never touches credentials.
func New(cfg Config) *Synthesizer {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ap-south-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{cfg: cfg}
}

// NewFromEnv builds a synthesizer from environment configuration.
func NewFromEnv() *Synthesizer {
	return New(ConfigFromEnv())
}

// NewWithClient injects a synthesis client, for tests.
func NewWithClient(cfg Config, client synthClient) *Synthesizer {
	s := New(cfg)
	s.client = client
	return s
}

// Synthesize produces base64 WAV-compatible PCM audio for text in lang.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, lang language.Code) (contracts.SynthesizeResult, error) {
	voice, ok := voices[lang]
	if !ok {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS,
			fmt.Errorf("no polly voice for language %q", lang))
	}

	client, err := s.resolveClient()
	if err != nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS, err)
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      voice,
	})
	if err != nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS, normalizeError(err))
	}
	if output == nil || output.AudioStream == nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS,
			fmt.Errorf("provider returned empty audio stream"))
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS,
			&contracts.NetworkError{Op: "read polly audio stream", Err: err})
	}
	return contracts.SynthesizeResult{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Duration:    pcmDurationSeconds(len(audio)),
	}, nil
}

// pcmDurationSeconds derives duration from payload size at Polly's 16kHz
// 16-bit mono PCM output.
func pcmDurationSeconds(byteLen int) float64 {
	const bytesPerSecond = 16000 * 2
	return float64(byteLen) / bytesPerSecond
}

func normalizeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &contracts.NetworkError{Op: "polly synthesize", Err: err}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return &contracts.NetworkError{Op: "polly synthesize", Err: err}
}

func (s *Synthesizer) resolveClient() (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
