// Package httpapi exposes the orchestration engine over HTTP: the direct
// /translate endpoint, the conversation submission boundary, the health
// probe, and a websocket stream of message-state updates for rendering
// surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	api "github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/connectivity"
	"github.com/samvaadcop/orchestrator/internal/language"
	"github.com/samvaadcop/orchestrator/internal/orchestrator"
)

// Server wires the HTTP routes to one orchestrator instance.
type Server struct {
	orch     *orchestrator.Orchestrator
	prober   connectivity.Prober
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP surface over orch, probing liveness through
// prober.
func NewServer(orch *orchestrator.Orchestrator, prober connectivity.Prober, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		orch:   orch,
		prober: prober,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router returns the configured mux router. Unmatched methods on matched
// paths answer 405.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogging)
	r.HandleFunc("/translate", s.handleTranslate).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/messages", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/languages", s.handleSetLanguage).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

type translateRequest struct {
	AudioBase64 string        `json:"audioBase64,omitempty"`
	Text        string        `json:"text,omitempty"`
	SourceLang  language.Code `json:"sourceLang"`
	TargetLang  language.Code `json:"targetLang"`
}

type translateData struct {
	Provider         string            `json:"provider"`
	Transcript       string            `json:"transcript,omitempty"`
	DetectedLanguage language.Code     `json:"detectedLanguage,omitempty"`
	Translation      string            `json:"translation,omitempty"`
	AudioBase64Out   string            `json:"audioBase64Out,omitempty"`
	Duration         float64           `json:"duration,omitempty"`
	Confidences      api.Confidence    `json:"confidences"`
	Errors           []api.StageReport `json:"errors,omitempty"`
	ProcessingTime   int64             `json:"processingTime"`
}

type translateResponse struct {
	Success bool          `json:"success"`
	Partial bool          `json:"partial,omitempty"`
	Data    translateData `json:"data"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.orch.Translate(r.Context(), api.Request{
		AudioBase64: req.AudioBase64,
		Text:        req.Text,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
	})
	if err != nil {
		var vErr *api.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := translateData{
		Provider:         "BHASHINI",
		Transcript:       res.Transcript,
		DetectedLanguage: res.DetectedLang,
		Translation:      res.Translation,
		AudioBase64Out:   res.AudioBase64,
		Duration:         res.Duration,
		Confidences:      res.Confidence,
		Errors:           res.Errors,
		ProcessingTime:   res.Elapsed.Milliseconds(),
	}

	switch {
	case res.Completed():
		writeJSON(w, http.StatusOK, translateResponse{Success: true, Data: data})
	case res.Partial():
		writeJSON(w, http.StatusPartialContent, translateResponse{
			Success: false,
			Partial: true,
			Data:    data,
			Error:   res.Errors[0].Message,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, translateResponse{
			Success: false,
			Data:    data,
			Error:   res.Errors[0].Message,
		})
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.prober.Probe(r.Context())
	status := "offline"
	if result.Up {
		status = "online"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       status,
		ResponseTime: result.Latency.Milliseconds(),
	})
}

type submitRequest struct {
	Text        string        `json:"text,omitempty"`
	AudioBase64 string        `json:"audioBase64,omitempty"`
	Language    language.Code `json:"language"`
	Sender      api.Sender    `json:"sender"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.orch.Submit(r.Context(), orchestrator.Submission{
		Text:        req.Text,
		AudioBase64: req.AudioBase64,
		Language:    req.Language,
		Sender:      req.Sender,
	})
	if err != nil {
		var vErr *api.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.orch.Store().All()})
}

type setLanguageRequest struct {
	Sender   api.Sender    `json:"sender"`
	Language language.Code `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req setLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.SetPartyLanguage(req.Sender, req.Language); err != nil {
		var vErr *api.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wsEvent is one message-state update pushed to display surfaces.
type wsEvent struct {
	Type    string      `json:"type"`
	Message api.Message `json:"message"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := s.orch.Store().Watch()
	defer s.orch.Store().Unwatch(events)

	// Snapshot first so a reconnecting panel renders the full log.
	for _, msg := range s.orch.Store().All() {
		if err := conn.WriteJSON(wsEvent{Type: "snapshot", Message: msg}); err != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			kind := "update"
			if ev.Created {
				kind = "created"
			}
			if err := conn.WriteJSON(wsEvent{Type: kind, Message: ev.Message}); err != nil {
				return
			}
		}
	}
}

// requestLogging tags each request with a correlation id and logs its
// outcome.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request handled",
			"requestID", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
