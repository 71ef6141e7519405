package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/store"
)

const shutdownTimeout = 10 * time.Second

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server receives webhook alerts and publishes the raw body on the bus.
type Server struct {
	cfg     store.ServerConfig
	channel string
	bus     interfaces.Bus
	router  *mux.Router
}

func NewServer(cfg store.ServerConfig, channel string, bus interfaces.Bus) *Server {
	s := &Server{
		cfg:     cfg,
		channel: channel,
		bus:     bus,
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc(cfg.WebhookPath, s.handleWebhook).Methods(http.MethodPost)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Webhook server listening", "addr", srv.Addr, "path", s.cfg.WebhookPath, "channel", s.channel)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info(ctx, "Webhook server stopped")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Bot is online")
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := uuid.NewString()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		logger.Warn(ctx, "Failed to read webhook body", "request_id", requestID, "error", err)
		writeStatus(w, http.StatusBadRequest, statusResponse{Status: "Failure", Error: "unreadable body"})
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		logger.Warn(ctx, "Empty webhook body", "request_id", requestID)
		writeStatus(w, http.StatusBadRequest, statusResponse{Status: "Failure", Error: "empty body"})
		return
	}

	n, err := s.bus.Publish(ctx, s.channel, body)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to publish alert", err, "request_id", requestID, "channel", s.channel)
		writeStatus(w, http.StatusBadGateway, statusResponse{Status: "Failure", Error: "publish failed"})
		return
	}
	if n == 0 {
		logger.Warn(ctx, "Alert published but no worker is listening", "request_id", requestID, "channel", s.channel)
		writeStatus(w, http.StatusServiceUnavailable, statusResponse{Status: "Failure"})
		return
	}

	logger.Info(ctx, "Alert relayed", "request_id", requestID, "channel", s.channel, "receivers", n, "bytes", len(body))
	writeStatus(w, http.StatusOK, statusResponse{Status: "Success"})
}

func writeStatus(w http.ResponseWriter, code int, resp statusResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
