package polly

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

type stubSynthClient struct {
	input  *polly.SynthesizeSpeechInput
	output *polly.SynthesizeSpeechOutput
	err    error
}

func (s *stubSynthClient) SynthesizeSpeech(_ context.Context, params *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	s.input = params
	return s.output, s.err
}

func TestSynthesizeEncodesAudio(t *testing.T) {
	t.Parallel()

	pcm := bytes.Repeat([]byte{0x01, 0x02}, 16000)
	stub := &stubSynthClient{output: &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader(pcm)),
	}}
	s := NewWithClient(Config{}, stub)

	got, err := s.Synthesize(context.Background(), "theft happened", language.English)
	if err != nil {
		t.Fatalf("unexpected synthesize error: %v", err)
	}
	if got.AudioBase64 != base64.StdEncoding.EncodeToString(pcm) {
		t.Fatalf("audio payload was not base64 of the pcm stream")
	}
	if got.Duration != 1.0 {
		t.Fatalf("expected one second of 16kHz mono pcm, got %v", got.Duration)
	}
	if stub.input.VoiceId != pollytypes.VoiceIdJoanna {
		t.Fatalf("expected the english voice, got %q", stub.input.VoiceId)
	}
}

func TestSynthesizeUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	s := NewWithClient(Config{}, &stubSynthClient{})

	_, err := s.Synthesize(context.Background(), "text", language.Bengali)
	var stageErr *contracts.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected a stage error, got %v", err)
	}
	if stageErr.Stage != contracts.StageTTS {
		t.Fatalf("expected tts stage tag, got %q", stageErr.Stage)
	}
}

func TestSynthesizeProviderFailureTagged(t *testing.T) {
	t.Parallel()

	stub := &stubSynthClient{err: errors.New("connection reset")}
	s := NewWithClient(Config{}, stub)

	_, err := s.Synthesize(context.Background(), "text", language.Hindi)
	var stageErr *contracts.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != contracts.StageTTS {
		t.Fatalf("expected tts stage tag, got %v", err)
	}
	var netErr *contracts.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected transport failure classified as network error, got %v", err)
	}
}
