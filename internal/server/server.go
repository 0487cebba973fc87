// Package server is the HTTP shell around the normalization engine: the
// outbound send API, the per-provider webhook receivers, and the health
// and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"msgbridge/internal/canonical"
	"msgbridge/internal/config"
	"msgbridge/internal/dispatch"
	"msgbridge/internal/engine"
	"msgbridge/internal/metrics"
)

// Server hosts the adapter's HTTP API.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	runner  *dispatch.Runner
	logger  *slog.Logger
	client  *http.Client
	httpSrv *http.Server
}

// Options configure a Server.
type Options struct {
	Config *config.Config
	Engine *engine.Engine
	Runner *dispatch.Runner
	Logger *slog.Logger
	// Client is used for forwarding standardized messages downstream.
	Client *http.Client
}

// New creates the HTTP shell.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = dispatch.NewRunner(logger)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Server{
		cfg:    opts.Config,
		engine: opts.Engine,
		runner: runner,
		logger: logger,
		client: client,
	}
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	mux.HandleFunc("/send/text", s.handleSendText)
	mux.HandleFunc("/send/image", s.handleSendImage)
	mux.HandleFunc("/send/sticker", s.handleSendSticker)
	mux.HandleFunc("/send/reaction", s.handleSendReaction)
	mux.HandleFunc("/send/list", s.handleSendList)
	mux.HandleFunc("/send/batch", s.handleSendBatch)
	mux.HandleFunc("/webhook/whatsapp", s.handleWhatsAppWebhook)
	mux.HandleFunc("/webhook/evolution", s.handleEvolutionWebhook)
	return mux
}

// Start runs the server until the context is cancelled, then drains
// in-flight webhook processing before returning.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.httpSrv.Addr, "provider", s.cfg.Provider.Selected)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.runner.Wait()
		return err
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.cfg.Provider.Selected,
		"uptime":   metrics.Collector.Uptime().Round(time.Second).String(),
		"endpoints": []string{
			"/send/text", "/send/image", "/send/sticker",
			"/send/reaction", "/send/list", "/send/batch",
		},
	})
}

// nonDigits strips formatting (plus sign, spaces, dashes) before the
// destination length check.
var nonDigits = regexp.MustCompile(`[^0-9]`)

// validDestination accepts international phone numbers with 10 to 15
// digits, ignoring separators.
func validDestination(to string) bool {
	digits := nonDigits.ReplaceAllString(to, "")
	return len(digits) >= 10 && len(digits) <= 15
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var in canonical.SendText
	if !s.decodeSendBody(w, r, &in) {
		return
	}
	if !validDestination(in.To) {
		writeJSON(w, http.StatusBadRequest, invalidDestination())
		return
	}
	s.writeSendResult(w, s.engine.SendText(r.Context(), in))
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) {
	var in canonical.SendImage
	if !s.decodeSendBody(w, r, &in) {
		return
	}
	if !validDestination(in.To) {
		writeJSON(w, http.StatusBadRequest, invalidDestination())
		return
	}
	s.writeSendResult(w, s.engine.SendImage(r.Context(), in))
}

func (s *Server) handleSendSticker(w http.ResponseWriter, r *http.Request) {
	var in canonical.SendSticker
	if !s.decodeSendBody(w, r, &in) {
		return
	}
	if !validDestination(in.To) {
		writeJSON(w, http.StatusBadRequest, invalidDestination())
		return
	}
	s.writeSendResult(w, s.engine.SendSticker(r.Context(), in))
}

func (s *Server) handleSendReaction(w http.ResponseWriter, r *http.Request) {
	var in canonical.SendReaction
	if !s.decodeSendBody(w, r, &in) {
		return
	}
	if !validDestination(in.To) {
		writeJSON(w, http.StatusBadRequest, invalidDestination())
		return
	}
	s.writeSendResult(w, s.engine.SendReaction(r.Context(), in))
}

func (s *Server) handleSendList(w http.ResponseWriter, r *http.Request) {
	var in canonical.SendList
	if !s.decodeSendBody(w, r, &in) {
		return
	}
	if !validDestination(in.To) {
		writeJSON(w, http.StatusBadRequest, invalidDestination())
		return
	}
	s.writeSendResult(w, s.engine.SendList(r.Context(), in))
}

// handleSendBatch accepts either a bare JSON array of send items or an
// object wrapping it under "messages".
func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var items []engine.BatchItem
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &items); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	} else {
		var wrapper struct {
			Messages []engine.BatchItem `json:"messages"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		items = wrapper.Messages
	}

	if len(items) == 0 {
		http.Error(w, "Batch is empty", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.SendBatch(r.Context(), items))
}

func invalidDestination() canonical.SendResult {
	return canonical.Failure(canonical.CodeInvalidInput, "destination must be 10-15 digits")
}

// decodeSendBody enforces POST and parses the JSON body into the send
// variant. A false return means the response has already been written.
func (s *Server) decodeSendBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// writeSendResult always answers 200 with the result envelope: every
// engine outcome, success or failure, is expressed in the body. Only
// request parsing and destination shape produce non-2xx statuses.
func (s *Server) writeSendResult(w http.ResponseWriter, res canonical.SendResult) {
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
