package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/connectivity"
	"github.com/samvaadcop/orchestrator/internal/conversation"
	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/pipeline"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
	"github.com/samvaadcop/orchestrator/internal/retry"
)

// fakeClient echoes inputs through the three stages and lets tests inject
// per-stage behavior.
type fakeClient struct {
	mu         sync.Mutex
	translated []string

	transcribe func(audio string, src language.Code) (contracts.TranscribeResult, error)
	translate  func(text string, src, tgt language.Code) (contracts.TranslateResult, error)
}

func (f *fakeClient) Transcribe(_ context.Context, audio string, src language.Code) (contracts.TranscribeResult, error) {
	if f.transcribe != nil {
		return f.transcribe(audio, src)
	}
	return contracts.TranscribeResult{Transcript: "transcript", Confidence: 0.9}, nil
}

func (f *fakeClient) Translate(_ context.Context, text string, src, tgt language.Code) (contracts.TranslateResult, error) {
	if f.translate != nil {
		return f.translate(text, src, tgt)
	}
	f.mu.Lock()
	f.translated = append(f.translated, text)
	f.mu.Unlock()
	return contracts.TranslateResult{Translation: "translated " + text, Confidence: 0.85}, nil
}

func (f *fakeClient) Synthesize(_ context.Context, text string, _ language.Code) (contracts.SynthesizeResult, error) {
	return contracts.SynthesizeResult{AudioBase64: "YXVkaW8=", Duration: 1.2}, nil
}

func (f *fakeClient) Probe(context.Context) contracts.ProbeResult {
	return contracts.ProbeResult{Up: true}
}

func (f *fakeClient) translatedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.translated...)
}

func newTestOrchestrator(t *testing.T, client contracts.Client) (*Orchestrator, *connectivity.Monitor) {
	t.Helper()
	store, err := conversation.NewStore(1)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	monitor := connectivity.NewMonitor(client, time.Hour)
	seq := pipeline.New(client, retry.Policy{MaxRetries: 1, Delay: time.Millisecond})
	return New(store, monitor, seq, nil), monitor
}

func TestSubmitOnlineRunsToCompleted(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o, monitor := newTestOrchestrator(t, client)
	monitor.SetOnline(true)

	msg, err := o.Submit(context.Background(), Submission{
		Text:     "theft happened",
		Language: language.English,
		Sender:   api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if msg.Status != api.StatusCompleted {
		t.Fatalf("expected completed, got %q", msg.Status)
	}
	if msg.TranslatedText == "" || msg.AudioOut == "" {
		t.Fatalf("expected translation and audio on the stored message: %+v", msg)
	}
	if msg.Confidence.Translation == nil || *msg.Confidence.Translation < 0 || *msg.Confidence.Translation > 1 {
		t.Fatalf("translation confidence out of range: %v", msg.Confidence.Translation)
	}
	// Citizen submissions target the officer's selected language.
	if msg.TranslatedLanguage != language.English {
		t.Fatalf("expected officer default target, got %q", msg.TranslatedLanguage)
	}
}

func TestSubmitDerivesTargetFromOtherParty(t *testing.T) {
	t.Parallel()

	var gotTarget language.Code
	client := &fakeClient{translate: func(text string, src, tgt language.Code) (contracts.TranslateResult, error) {
		gotTarget = tgt
		return contracts.TranslateResult{Translation: "out", Confidence: 0.8}, nil
	}}
	o, monitor := newTestOrchestrator(t, client)
	monitor.SetOnline(true)

	if err := o.SetPartyLanguage(api.SenderOfficer, language.Tamil); err != nil {
		t.Fatalf("unexpected language error: %v", err)
	}
	_, err := o.Submit(context.Background(), Submission{
		Text:     "namaste",
		Language: language.Hindi,
		Sender:   api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if gotTarget != language.Tamil {
		t.Fatalf("expected the officer's selected language as target, got %q", gotTarget)
	}
}

func TestSubmitRejectsInvalidSubmissions(t *testing.T) {
	t.Parallel()

	o, monitor := newTestOrchestrator(t, &fakeClient{})
	monitor.SetOnline(true)

	cases := []struct {
		name string
		sub  Submission
	}{
		{name: "no input", sub: Submission{Language: language.Hindi, Sender: api.SenderCitizen}},
		{name: "bad language", sub: Submission{Text: "x", Language: "xx", Sender: api.SenderCitizen}},
		{name: "bad sender", sub: Submission{Text: "x", Language: language.Hindi, Sender: "judge"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Submit(context.Background(), tc.sub)
			var vErr *api.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
	if len(o.Store().All()) != 0 {
		t.Fatalf("rejected submissions must not reach the store")
	}
}

func TestSubmitOfflineQueuesWithPlaceholder(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &fakeClient{})

	msg, err := o.Submit(context.Background(), Submission{
		AudioBase64: "UklGRg==",
		Language:    language.Hindi,
		Sender:      api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if msg.Status != api.StatusOffline {
		t.Fatalf("expected offline placeholder, got %q", msg.Status)
	}
	if msg.OriginalText != "Audio message" {
		t.Fatalf("expected audio placeholder text, got %q", msg.OriginalText)
	}
	if o.Queue().Len() != 1 {
		t.Fatalf("expected one queued entry, got %d", o.Queue().Len())
	}
}

func TestReconnectReplaysWithoutResubmission(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o, monitor := newTestOrchestrator(t, client)

	msg, err := o.Submit(context.Background(), Submission{
		Text:     "theft happened",
		Language: language.English,
		Sender:   api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if msg.Status != api.StatusOffline {
		t.Fatalf("expected offline placeholder, got %q", msg.Status)
	}

	monitor.SetOnline(true)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := o.Store().Get(msg.ID)
		if got.Status.Terminal() {
			if got.Status != api.StatusCompleted {
				t.Fatalf("expected completed after replay, got %q", got.Status)
			}
			if got.TranslatedText == "" {
				t.Fatalf("expected translation after replay")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replay did not reach a terminal state, status %q", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if o.Queue().Len() != 0 {
		t.Fatalf("queue must be empty after the drain, got %d", o.Queue().Len())
	}
}

func TestDrainPreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o, monitor := newTestOrchestrator(t, client)

	for _, text := range []string{"A", "B", "C"} {
		if _, err := o.Submit(context.Background(), Submission{
			Text:     text,
			Language: language.Hindi,
			Sender:   api.SenderCitizen,
		}); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	monitor.SetOnline(true)
	if n := o.DrainOfflineQueue(context.Background()); n > 3 {
		t.Fatalf("drain attempted too many entries: %d", n)
	}

	deadline := time.Now().Add(5 * time.Second)
	for o.Queue().Len() > 0 || !allTerminal(o) {
		if time.Now().After(deadline) {
			t.Fatalf("drain did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := client.translatedTexts()
	want := []string{"A", "B", "C"}
	if len(got) != 3 {
		t.Fatalf("expected three replays, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected replay order %v, got %v", want, got)
		}
	}
}

func allTerminal(o *Orchestrator) bool {
	for _, m := range o.Store().All() {
		if !m.Status.Terminal() {
			return false
		}
	}
	return true
}

func TestOnlineSubmissionDoesNotInterleaveWithDrain(t *testing.T) {
	t.Parallel()

	firstReplayStarted := make(chan struct{})
	releaseReplays := make(chan struct{})
	var once sync.Once

	client := &fakeClient{}
	client.translate = func(text string, _, _ language.Code) (contracts.TranslateResult, error) {
		if text == "A" {
			once.Do(func() { close(firstReplayStarted) })
			<-releaseReplays
		}
		client.mu.Lock()
		client.translated = append(client.translated, text)
		client.mu.Unlock()
		return contracts.TranslateResult{Translation: "translated " + text, Confidence: 0.8}, nil
	}

	o, monitor := newTestOrchestrator(t, client)

	for _, text := range []string{"A", "B"} {
		if _, err := o.Submit(context.Background(), Submission{
			Text:     text,
			Language: language.Hindi,
			Sender:   api.SenderCitizen,
		}); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	monitor.SetOnline(true)
	<-firstReplayStarted

	// An online submission arriving mid-drain must wait for the whole drain.
	onlineDone := make(chan struct{})
	go func() {
		defer close(onlineDone)
		if _, err := o.Submit(context.Background(), Submission{
			Text:     "online",
			Language: language.Hindi,
			Sender:   api.SenderOfficer,
		}); err != nil {
			t.Errorf("unexpected submit error: %v", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	close(releaseReplays)

	select {
	case <-onlineDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("online submission never completed")
	}

	got := client.translatedTexts()
	if len(got) != 3 {
		t.Fatalf("expected three pipeline runs, got %v", got)
	}
	if got[0] != "A" || got[1] != "B" || got[2] != "online" {
		t.Fatalf("online submission interleaved with the drain: %v", got)
	}
}

func TestPartialFailureStoredAsFailedWithTranscript(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		translate: func(string, language.Code, language.Code) (contracts.TranslateResult, error) {
			return contracts.TranslateResult{}, contracts.NewStageError(contracts.StageTranslation, fmt.Errorf("nmt down"))
		},
	}
	o, monitor := newTestOrchestrator(t, client)
	monitor.SetOnline(true)

	msg, err := o.Submit(context.Background(), Submission{
		AudioBase64: "UklGRg==",
		Language:    language.Hindi,
		Sender:      api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if msg.Status != api.StatusFailed {
		t.Fatalf("expected failed, got %q", msg.Status)
	}
	if msg.OriginalText != "transcript" {
		t.Fatalf("transcript from the successful asr stage must be stored, got %q", msg.OriginalText)
	}
	if msg.TranslatedText != "" {
		t.Fatalf("translated text must stay unset, got %q", msg.TranslatedText)
	}
	if len(msg.Errors) != 1 || msg.Errors[0].Stage != string(contracts.StageTranslation) {
		t.Fatalf("expected one translation-tagged error, got %v", msg.Errors)
	}
}

func TestDetectedLanguageStoredOnMessage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		transcribe: func(string, language.Code) (contracts.TranscribeResult, error) {
			return contracts.TranscribeResult{Transcript: "text", DetectedLang: language.Tamil, Confidence: 0.9}, nil
		},
	}
	o, monitor := newTestOrchestrator(t, client)
	monitor.SetOnline(true)

	msg, err := o.Submit(context.Background(), Submission{
		AudioBase64: "UklGRg==",
		Language:    language.Hindi,
		Sender:      api.SenderCitizen,
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if msg.OriginalLanguage != language.Tamil {
		t.Fatalf("detected language must supersede the declared one, got %q", msg.OriginalLanguage)
	}
	// The override is scoped to the message: the officer's reply target is
	// untouched.
	if o.PartyLanguage(api.SenderCitizen) != language.Hindi {
		t.Fatalf("detected language must not rewrite the party selector")
	}
}

func TestTranslateDoesNotTouchConversationLog(t *testing.T) {
	t.Parallel()

	o, monitor := newTestOrchestrator(t, &fakeClient{})
	monitor.SetOnline(true)

	res, err := o.Translate(context.Background(), api.Request{
		Text:       "theft happened",
		SourceLang: language.English,
		TargetLang: language.Hindi,
	})
	if err != nil {
		t.Fatalf("unexpected translate error: %v", err)
	}
	if !res.Completed() {
		t.Fatalf("expected completed result, got %v", res.Errors)
	}
	if strings.TrimSpace(res.Translation) == "" {
		t.Fatalf("expected a translation")
	}
	if len(o.Store().All()) != 0 {
		t.Fatalf("the stateless translate path must not append messages")
	}
}
