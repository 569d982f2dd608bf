// Package bhashini implements the language-service client against a
// ULCA-style inference provider. Each stage call first resolves a compute
// service for its task type, then invokes the resolved inference endpoint.
package bhashini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
)

const (
	taskASR         = "asr"
	taskTranslation = "translation"
	taskTTS         = "tts"

	asrSamplingRate = 16000
	ttsSamplingRate = 22050
	audioFormatWAV  = "wav"
)

// Config configures the provider client.
type Config struct {
	BaseURL    string
	APIKey     string
	UserID     string
	PipelineID string
	Timeout    time.Duration
}

// ConfigFromEnv reads SAMVAAD_BHASHINI_* settings with provider defaults.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:    defaultString(os.Getenv("SAMVAAD_BHASHINI_BASE_URL"), "https://dhruva-api.bhashini.gov.in/services"),
		APIKey:     os.Getenv("SAMVAAD_BHASHINI_API_KEY"),
		UserID:     os.Getenv("SAMVAAD_BHASHINI_USER_ID"),
		PipelineID: defaultString(os.Getenv("SAMVAAD_BHASHINI_PIPELINE_ID"), "64392f96daac500b55c543cd"),
		Timeout:    10 * time.Second,
	}
}

// Client is a stateless adapter over the provider's HTTP API. It implements
// contracts.Client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a client with cfg, applying defaults for missing fields.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewFromEnv constructs a client from environment configuration.
func NewFromEnv() (*Client, error) {
	return New(ConfigFromEnv())
}

// wire types for the ULCA pipeline contract. The shapes are provider-defined
// and stay private to this package.

type languageConfig struct {
	SourceLanguage language.Code `json:"sourceLanguage"`
	TargetLanguage language.Code `json:"targetLanguage,omitempty"`
}

type taskConfig struct {
	Language     languageConfig `json:"language"`
	ServiceID    string         `json:"serviceId,omitempty"`
	AudioFormat  string         `json:"audioFormat,omitempty"`
	SamplingRate int            `json:"samplingRate,omitempty"`
}

type pipelineTask struct {
	TaskType string     `json:"taskType"`
	Config   taskConfig `json:"config"`
}

type resolveRequest struct {
	PipelineTasks         []pipelineTask `json:"pipelineTasks"`
	PipelineRequestConfig struct {
		PipelineID string `json:"pipelineId"`
	} `json:"pipelineRequestConfig"`
}

type resolveResponse struct {
	PipelineResponseConfig []struct {
		Config []struct {
			ServiceID string `json:"serviceId"`
		} `json:"config"`
		InferenceAPIKey struct {
			Value             string `json:"value"`
			InferenceEndPoint string `json:"inferenceEndPoint"`
		} `json:"inferenceApiKey"`
	} `json:"pipelineResponseConfig"`
}

type inferenceRequest struct {
	PipelineTasks []pipelineTask `json:"pipelineTasks"`
	InputData     struct {
		Audio []struct {
			AudioContent string `json:"audioContent"`
		} `json:"audio,omitempty"`
		Input []struct {
			Source string `json:"source"`
		} `json:"input,omitempty"`
	} `json:"inputData"`
}

type inferenceResponse struct {
	PipelineResponse []struct {
		Config *struct {
			Language languageConfig `json:"language"`
		} `json:"config"`
		Output []struct {
			Source     string   `json:"source"`
			Target     string   `json:"target"`
			Confidence *float64 `json:"confidence"`
		} `json:"output"`
		Audio []struct {
			AudioContent string  `json:"audioContent"`
			Duration     float64 `json:"duration"`
		} `json:"audio"`
	} `json:"pipelineResponse"`
}

type computeService struct {
	ServiceID string
	Endpoint  string
	APIKey    string
}

// resolveComputeService maps (taskType, sourceLang, targetLang?) to a
// concrete inference endpoint and credential.
func (c *Client) resolveComputeService(ctx context.Context, task string, src, tgt language.Code) (computeService, error) {
	req := resolveRequest{
		PipelineTasks: []pipelineTask{{
			TaskType: task,
			Config:   taskConfig{Language: languageConfig{SourceLanguage: src, TargetLanguage: tgt}},
		}},
	}
	req.PipelineRequestConfig.PipelineID = c.cfg.PipelineID

	headers := map[string]string{
		"userID":     c.cfg.UserID,
		"ulcaApiKey": c.cfg.APIKey,
	}
	var resp resolveResponse
	if err := c.postJSON(ctx, c.cfg.BaseURL+"/inference/pipeline", headers, req, &resp); err != nil {
		return computeService{}, err
	}
	if len(resp.PipelineResponseConfig) == 0 || len(resp.PipelineResponseConfig[0].Config) == 0 {
		return computeService{}, fmt.Errorf("malformed pipeline config response for task %s", task)
	}
	cfg := resp.PipelineResponseConfig[0]
	svc := computeService{
		ServiceID: cfg.Config[0].ServiceID,
		Endpoint:  cfg.InferenceAPIKey.InferenceEndPoint,
		APIKey:    cfg.InferenceAPIKey.Value,
	}
	if svc.Endpoint == "" {
		return computeService{}, fmt.Errorf("pipeline config response for task %s has no inference endpoint", task)
	}
	return svc, nil
}

// Transcribe runs the ASR task for one audio payload.
func (c *Client) Transcribe(ctx context.Context, audioBase64 string, sourceLang language.Code) (contracts.TranscribeResult, error) {
	svc, err := c.resolveComputeService(ctx, taskASR, sourceLang, "")
	if err != nil {
		return contracts.TranscribeResult{}, contracts.NewStageError(contracts.StageResolve, err)
	}

	req := inferenceRequest{
		PipelineTasks: []pipelineTask{{
			TaskType: taskASR,
			Config: taskConfig{
				Language:     languageConfig{SourceLanguage: sourceLang},
				ServiceID:    svc.ServiceID,
				AudioFormat:  audioFormatWAV,
				SamplingRate: asrSamplingRate,
			},
		}},
	}
	req.InputData.Audio = []struct {
		AudioContent string `json:"audioContent"`
	}{{AudioContent: audioBase64}}

	var resp inferenceResponse
	if err := c.postJSON(ctx, svc.Endpoint, map[string]string{"Authorization": svc.APIKey}, req, &resp); err != nil {
		return contracts.TranscribeResult{}, contracts.NewStageError(contracts.StageASR, err)
	}
	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Output) == 0 {
		return contracts.TranscribeResult{}, contracts.NewStageError(contracts.StageASR,
			fmt.Errorf("malformed asr response: no output"))
	}

	task := resp.PipelineResponse[0]
	result := contracts.TranscribeResult{
		Transcript: task.Output[0].Source,
		Confidence: confidenceOrDefault(task.Output[0].Confidence),
	}
	if task.Config != nil {
		detected := task.Config.Language.SourceLanguage
		if detected != "" && detected != sourceLang && language.Supported(detected) {
			result.DetectedLang = detected
		}
	}
	return result, nil
}

// Translate runs the NMT task for one text payload.
func (c *Client) Translate(ctx context.Context, text string, sourceLang, targetLang language.Code) (contracts.TranslateResult, error) {
	svc, err := c.resolveComputeService(ctx, taskTranslation, sourceLang, targetLang)
	if err != nil {
		return contracts.TranslateResult{}, contracts.NewStageError(contracts.StageResolve, err)
	}

	req := inferenceRequest{
		PipelineTasks: []pipelineTask{{
			TaskType: taskTranslation,
			Config: taskConfig{
				Language:  languageConfig{SourceLanguage: sourceLang, TargetLanguage: targetLang},
				ServiceID: svc.ServiceID,
			},
		}},
	}
	req.InputData.Input = []struct {
		Source string `json:"source"`
	}{{Source: text}}

	var resp inferenceResponse
	if err := c.postJSON(ctx, svc.Endpoint, map[string]string{"Authorization": svc.APIKey}, req, &resp); err != nil {
		return contracts.TranslateResult{}, contracts.NewStageError(contracts.StageTranslation, err)
	}
	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Output) == 0 {
		return contracts.TranslateResult{}, contracts.NewStageError(contracts.StageTranslation,
			fmt.Errorf("malformed translation response: no output"))
	}

	out := resp.PipelineResponse[0].Output[0]
	return contracts.TranslateResult{
		Translation: out.Target,
		Confidence:  confidenceOrDefault(out.Confidence),
	}, nil
}

// Synthesize runs the TTS task for one text payload.
func (c *Client) Synthesize(ctx context.Context, text string, lang language.Code) (contracts.SynthesizeResult, error) {
	svc, err := c.resolveComputeService(ctx, taskTTS, lang, "")
	if err != nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageResolve, err)
	}

	req := inferenceRequest{
		PipelineTasks: []pipelineTask{{
			TaskType: taskTTS,
			Config: taskConfig{
				Language:     languageConfig{SourceLanguage: lang},
				ServiceID:    svc.ServiceID,
				AudioFormat:  audioFormatWAV,
				SamplingRate: ttsSamplingRate,
			},
		}},
	}
	req.InputData.Input = []struct {
		Source string `json:"source"`
	}{{Source: text}}

	var resp inferenceResponse
	if err := c.postJSON(ctx, svc.Endpoint, map[string]string{"Authorization": svc.APIKey}, req, &resp); err != nil {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS, err)
	}
	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Audio) == 0 {
		return contracts.SynthesizeResult{}, contracts.NewStageError(contracts.StageTTS,
			fmt.Errorf("malformed tts response: no audio"))
	}

	audio := resp.PipelineResponse[0].Audio[0]
	return contracts.SynthesizeResult{
		AudioBase64: audio.AudioContent,
		Duration:    audio.Duration,
	}, nil
}

// Probe checks provider liveness. It never returns an error: any failure
// maps to Up=false.
func (c *Client) Probe(ctx context.Context) contracts.ProbeResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL+"/inference/pipeline", nil)
	if err != nil {
		return contracts.ProbeResult{Up: false, Latency: time.Since(start)}
	}
	req.Header.Set("userID", c.cfg.UserID)
	req.Header.Set("ulcaApiKey", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return contracts.ProbeResult{Up: false, Latency: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return contracts.ProbeResult{
		Up:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Latency: latency,
	}
}

// postJSON executes one JSON request/response round trip. Transport failures
// come back as *contracts.NetworkError so callers can distinguish them from
// provider error responses.
func (c *Client) postJSON(ctx context.Context, endpoint string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &contracts.NetworkError{Op: "post " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return &contracts.NetworkError{Op: "read response from " + endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(payload, 256))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func confidenceOrDefault(v *float64) float64 {
	if v == nil {
		return contracts.DefaultConfidence
	}
	return contracts.ClampConfidence(*v)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
