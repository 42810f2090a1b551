package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"nhooyr.io/websocket"

	"musicbattle/transport"
)

const (
	writeTimeout       = 10 * time.Second
	defaultConcurrency = 16
	maxFrameBytes      = 64 << 10
)

// Frame is a relay frame sent to the adapter. Inbound frames are bare
// transport.Inbound payloads.
type Frame struct {
	Type    string             `json:"type"`
	Message *transport.Message `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Option customises the relay.
type Option func(*Relay)

// WithLogger overrides the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConcurrency bounds the number of events handled at once per connection.
func WithConcurrency(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithOriginPatterns restricts accepted browser origins.
func WithOriginPatterns(patterns ...string) Option {
	return func(r *Relay) {
		r.origins = append([]string(nil), patterns...)
	}
}

// Relay accepts a long-lived websocket from a chat adapter. Inbound frames
// are dispatched concurrently; replies are written back on the same socket.
type Relay struct {
	handler     transport.Handler
	logger      *slog.Logger
	concurrency int64
	origins     []string
}

// New constructs a relay around handler.
func New(handler transport.Handler, opts ...Option) *Relay {
	r := &Relay{
		handler:     handler,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		origins:     []string{"*"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ServeHTTP upgrades the request and serves frames until the peer goes away.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{OriginPatterns: r.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "relay closed")
	conn.SetReadLimit(maxFrameBytes)

	if err := r.serve(req.Context(), conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			r.logger.Warn("relay connection failed", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "relay error")
		}
	}
}

func (r *Relay) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &connSink{conn: conn}
	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var in transport.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = sink.write(ctx, Frame{Type: "error", Error: "invalid frame"})
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(in transport.Inbound) {
			defer wg.Done()
			defer sem.Release(1)
			if err := r.handler.Handle(ctx, in, sink); err != nil {
				r.logger.Debug("relay event not handled", slog.String("delivery_id", in.ID), slog.Any("error", err))
			}
		}(in)
	}
}

type connSink struct {
	conn *websocket.Conn
}

func (s *connSink) Send(ctx context.Context, msg transport.Message) error {
	return s.write(ctx, Frame{Type: "message", Message: &msg})
}

func (s *connSink) write(ctx context.Context, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}
