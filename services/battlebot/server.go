package battlebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"musicbattle/transport"
)

const maxEventBytes = 64 << 10

// ServerConfig captures the dependencies of the HTTP surface. Sink is the
// outbound callback; when nil, webhook replies are returned inline.
type ServerConfig struct {
	Handler transport.Handler
	Sink    transport.Sink
	Relay   http.Handler
	Auth    *Authenticator
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server exposes the webhook, relay, health and metrics endpoints.
type Server struct {
	handler transport.Handler
	sink    transport.Sink
	relay   http.Handler
	auth    *Authenticator
	metrics http.Handler
	logger  *slog.Logger

	router http.Handler
}

// NewServer constructs the router.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		handler: cfg.Handler,
		sink:    cfg.Sink,
		relay:   cfg.Relay,
		auth:    cfg.Auth,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auth == nil {
		s.auth = NewAuthenticator(AuthConfig{Disabled: true}, s.logger)
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.auth.Middleware(ScopeEvents)).Post("/events", s.handleEvent)
		if s.relay != nil {
			v1.With(s.auth.Middleware(ScopeRelay)).Method(http.MethodGet, "/relay", s.relay)
		}
	})
	return otelhttp.NewHandler(r, "battlebot")
}

type eventResponse struct {
	Status   string              `json:"status"`
	Messages []transport.Message `json:"messages,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var in transport.Inbound
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("decode event: %w", err))
		return
	}
	sink := s.sink
	var inline *collectingSink
	if sink == nil {
		inline = &collectingSink{}
		sink = inline
	}
	if err := s.handler.Handle(r.Context(), in, sink); err != nil {
		if errors.Is(err, transport.ErrMissingParticipant) {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Warn("webhook event failed",
			slog.String("delivery_id", strings.TrimSpace(in.ID)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Any("error", err))
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	if inline != nil {
		writeJSON(w, http.StatusOK, eventResponse{Status: "handled", Messages: inline.messages()})
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted"})
}

// collectingSink buffers replies for inline webhook responses.
type collectingSink struct {
	mu   sync.Mutex
	msgs []transport.Message
}

func (c *collectingSink) Send(_ context.Context, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collectingSink) messages() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Message(nil), c.msgs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response failed", slog.Any("error", err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
