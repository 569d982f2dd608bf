// Package orchestrator routes citizen and officer submissions through the
// translation pipeline, the conversation store, and the offline queue under
// a global single-flight constraint.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	api "github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/connectivity"
	"github.com/samvaadcop/orchestrator/internal/conversation"
	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/metrics"
	"github.com/samvaadcop/orchestrator/internal/offline"
	"github.com/samvaadcop/orchestrator/internal/pipeline"
)

// Submission is the boundary payload from either party's panel. The target
// language is implicit: it is the other party's currently selected language.
type Submission struct {
	Text        string
	AudioBase64 string
	Language    language.Code
	Sender      api.Sender
}

// Orchestrator owns the single-flight gate and wires the store, the queue,
// the monitor, and the sequencer together. Each instance has its own gate so
// tests never share it implicitly.
type Orchestrator struct {
	store     *conversation.Store
	queue     *offline.Queue
	monitor   *connectivity.Monitor
	sequencer *pipeline.Sequencer
	log       *slog.Logger

	// flight is the global single-flight semaphore: at most one request is
	// inside the sequencer at a time.
	flight chan struct{}

	mu        sync.Mutex
	languages map[api.Sender]language.Code
}

// New wires an orchestrator. The offline queue is created here so its replay
// path shares the single-flight discipline, and the monitor's online edge is
// subscribed to drain it exactly once per reconnect.
func New(store *conversation.Store, monitor *connectivity.Monitor, sequencer *pipeline.Sequencer, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		store:     store,
		monitor:   monitor,
		sequencer: sequencer,
		log:       log,
		flight:    make(chan struct{}, 1),
		languages: map[api.Sender]language.Code{
			api.SenderCitizen: language.Hindi,
			api.SenderOfficer: language.English,
		},
	}
	o.queue = offline.NewQueue(monitor, o.replay)
	monitor.OnOnline(func() {
		go o.DrainOfflineQueue(context.Background())
	})
	return o
}

// Queue exposes the offline queue, mainly for depth reporting.
func (o *Orchestrator) Queue() *offline.Queue {
	return o.queue
}

// Store exposes the conversation store for rendering surfaces.
func (o *Orchestrator) Store() *conversation.Store {
	return o.store
}

// SetPartyLanguage records a party's selected language, which becomes the
// implicit target for the other party's submissions.
func (o *Orchestrator) SetPartyLanguage(sender api.Sender, lang language.Code) error {
	if err := sender.Validate(); err != nil {
		return api.NewValidationError("%v", err)
	}
	if err := language.Validate(lang); err != nil {
		return api.NewValidationError("%v", err)
	}
	o.mu.Lock()
	o.languages[sender] = lang
	o.mu.Unlock()
	return nil
}

// PartyLanguage returns a party's currently selected language.
func (o *Orchestrator) PartyLanguage(sender api.Sender) language.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.languages[sender]
}

func (o *Orchestrator) targetFor(sender api.Sender) language.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sender == api.SenderCitizen {
		return o.languages[api.SenderOfficer]
	}
	return o.languages[api.SenderCitizen]
}

// Submit accepts one party's submission. Online submissions run the pipeline
// to a terminal state before returning; offline submissions are queued and
// the returned message carries the offline status.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (api.Message, error) {
	if err := sub.Sender.Validate(); err != nil {
		return api.Message{}, api.NewValidationError("%v", err)
	}
	req := api.Request{
		Text:        sub.Text,
		AudioBase64: sub.AudioBase64,
		SourceLang:  sub.Language,
		TargetLang:  o.targetFor(sub.Sender),
	}
	if err := req.Validate(); err != nil {
		return api.Message{}, err
	}

	// The submission updates the sender's own selected language, mirroring
	// the panel's language picker.
	o.mu.Lock()
	o.languages[sub.Sender] = sub.Language
	o.mu.Unlock()

	online := o.monitor.Online()
	status := api.StatusProcessing
	if !online {
		status = api.StatusOffline
	}
	msg := o.store.Append(api.Message{
		Sender:           sub.Sender,
		OriginalText:     originalText(req),
		OriginalLanguage: req.SourceLang,
		Status:           status,
	})

	if !online {
		o.queue.Enqueue(offline.Entry{MessageID: msg.ID, Request: req, Sender: sub.Sender})
		return msg, nil
	}

	if err := o.acquire(ctx); err != nil {
		// The gate was never entered; the message stays pending work and is
		// routed through the queue for the next drain.
		o.setStatus(msg.ID, api.StatusOffline)
		o.queue.Enqueue(offline.Entry{MessageID: msg.ID, Request: req, Sender: sub.Sender})
		msg.Status = api.StatusOffline
		return msg, nil
	}
	defer o.release()

	o.runPipeline(ctx, msg.ID, req)
	final, _ := o.store.Get(msg.ID)
	return final, nil
}

// Translate runs one validated request through the pipeline under the
// single-flight gate and returns the composite result directly. This is the
// stateless provider-facing path used by the HTTP /translate endpoint; it
// does not touch the conversation log.
func (o *Orchestrator) Translate(ctx context.Context, req api.Request) (pipeline.Result, error) {
	if err := req.Validate(); err != nil {
		return pipeline.Result{}, err
	}
	if err := o.acquire(ctx); err != nil {
		return pipeline.Result{}, fmt.Errorf("waiting for pipeline slot: %w", err)
	}
	defer o.release()

	res := o.sequencer.Run(ctx, req)
	o.observe(res)
	return res, nil
}

// DrainOfflineQueue replays queued submissions while holding the
// single-flight gate for the whole pass, so a concurrently submitted online
// message cannot interleave with the replay order.
func (o *Orchestrator) DrainOfflineQueue(ctx context.Context) int {
	if !o.monitor.Online() || o.queue.Len() == 0 {
		return 0
	}
	if err := o.acquire(ctx); err != nil {
		return 0
	}
	defer o.release()

	return o.queue.DrainIfOnline(ctx)
}

// replay is the queue's callback. The drain already holds the gate, so the
// pipeline runs directly.
func (o *Orchestrator) replay(ctx context.Context, entry offline.Entry) error {
	o.setStatus(entry.MessageID, api.StatusProcessing)
	res := o.runPipeline(ctx, entry.MessageID, entry.Request)
	if !res.Completed() {
		return fmt.Errorf("replay of message %s failed", entry.MessageID)
	}
	return nil
}

// runPipeline executes the sequencer for a stored message and patches the
// message to its terminal state. The caller must hold the gate.
func (o *Orchestrator) runPipeline(ctx context.Context, messageID string, req api.Request) pipeline.Result {
	res := o.sequencer.Run(ctx, req)
	o.observe(res)

	status := api.StatusCompleted
	if !res.Completed() {
		status = api.StatusFailed
	}

	patch := conversation.Patch{
		Status:     &status,
		Confidence: &res.Confidence,
		Errors:     res.Errors,
	}
	if res.Transcript != "" {
		patch.OriginalText = &res.Transcript
	}
	if lang := res.SourceLang(req.SourceLang); lang != req.SourceLang {
		patch.OriginalLanguage = &lang
	}
	if res.Translation != "" {
		patch.TranslatedText = &res.Translation
		target := req.TargetLang
		patch.TranslatedLanguage = &target
	}
	if res.AudioBase64 != "" {
		patch.AudioOut = &res.AudioBase64
	}
	o.store.UpdateByID(messageID, patch)

	o.log.Info("pipeline finished",
		"messageID", messageID,
		"status", status,
		"elapsed", res.Elapsed,
		"stageErrors", len(res.Errors))
	return res
}

func (o *Orchestrator) observe(res pipeline.Result) {
	metrics.PipelineDuration.Observe(res.Elapsed.Seconds())
	if res.Completed() {
		metrics.RequestsTotal.WithLabelValues(string(api.StatusCompleted)).Inc()
	} else {
		metrics.RequestsTotal.WithLabelValues(string(api.StatusFailed)).Inc()
	}
}

func (o *Orchestrator) setStatus(id string, status api.Status) {
	o.store.UpdateByID(id, conversation.Patch{Status: &status})
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.flight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.flight
}

func originalText(req api.Request) string {
	if req.Text != "" {
		return req.Text
	}
	return "Audio message"
}
