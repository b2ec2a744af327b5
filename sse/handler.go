package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golden-vcr/openapi-go/entry"
)

// DefaultKeepalive is how often a comment line is sent on an otherwise idle stream
const DefaultKeepalive = 30 * time.Second

// Handler is an HTTP handler that serves a stream of data using Server-Sent Events
type Handler[T any] struct {
	ctx       context.Context
	b         *bus[T]
	keepalive time.Duration

	// Match, if set, decides whether a message is sent to the client that made req
	Match func(req *http.Request, message T) bool
}

type Option[T any] func(h *Handler[T])

// WithEventIds tags each message with the id returned by eventId, and retains the
// latest limit messages so that a client reconnecting with Last-Event-ID receives the
// messages it missed
func WithEventIds[T any](eventId func(T) string, limit int) Option[T] {
	return func(h *Handler[T]) {
		h.b.eventId = eventId
		h.b.limit = limit
	}
}

// WithKeepalive overrides DefaultKeepalive
func WithKeepalive[T any](interval time.Duration) Option[T] {
	return func(h *Handler[T]) {
		h.keepalive = interval
	}
}

// NewHandler initializes an SSE handler that will read messages from the given channel
// and fan them out to all extant HTTP connections
func NewHandler[T any](ctx context.Context, ch <-chan T, opts ...Option[T]) *Handler[T] {
	h := &Handler[T]{
		ctx:       ctx,
		b:         &bus[T]{chs: make(map[chan T]struct{})},
		keepalive: DefaultKeepalive,
	}
	for _, opt := range opts {
		opt(h)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				h.b.clear()
				return
			case message, ok := <-ch:
				if !ok {
					return
				}
				h.b.publish(message)
			}
		}
	}()
	return h
}

// ServeHTTP responds by opening a long-lived HTTP connection to which events will be
// written as the handler receives them, formatted as text/event-stream messages with
// 'data' consisting of a JSON-encoded message payload
func (h *Handler[T]) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	logger := entry.Logger(req.Context())

	// If a content-type is explicitly requested, require that it's text/event-stream
	accept := req.Header.Get("accept")
	if accept != "" && accept != "*/*" && !strings.HasPrefix(accept, "text/event-stream") {
		message := fmt.Sprintf("content-type %s is not supported", accept)
		http.Error(res, message, http.StatusBadRequest)
		return
	}
	flusher, ok := res.(http.Flusher)
	if !ok {
		http.Error(res, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	res.Header().Set("content-type", "text/event-stream")
	res.Header().Set("cache-control", "no-cache")
	res.Header().Set("connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ch := make(chan T, 32)
	missed := h.b.register(ch, req.Header.Get("last-event-id"))
	defer h.b.unregister(ch)

	// Catch the client up if it's reconnecting; otherwise send an initial keepalive so
	// that proxies begin streaming immediately
	missed = h.filter(req, missed)
	if len(missed) > 0 {
		h.write(res, logger, missed...)
	} else {
		res.Write([]byte(":\n\n"))
	}
	flusher.Flush()

	logger.Info("Opened SSE connection", "numReplayed", len(missed))
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			res.Write([]byte(":\n\n"))
			flusher.Flush()
		case message := <-ch:
			if m := h.filter(req, []T{message}); len(m) > 0 {
				h.write(res, logger, m...)
				flusher.Flush()
			}
		case <-h.ctx.Done():
			logger.Info("Server is shutting down; abandoning SSE connection")
			return
		case <-req.Context().Done():
			logger.Info("Closed SSE connection")
			return
		}
	}
}

func (h *Handler[T]) filter(req *http.Request, messages []T) []T {
	if h.Match == nil {
		return messages
	}
	matched := messages[:0]
	for _, message := range messages {
		if h.Match(req, message) {
			matched = append(matched, message)
		}
	}
	return matched
}

func (h *Handler[T]) write(res http.ResponseWriter, logger *slog.Logger, messages ...T) {
	for _, message := range messages {
		data, err := json.Marshal(message)
		if err != nil {
			logger.Error("Failed to serialize SSE message as JSON", "error", err)
			continue
		}
		if h.b.eventId != nil {
			if eventId := h.b.eventId(message); eventId != "" {
				fmt.Fprintf(res, "id: %s\n", eventId)
			}
		}
		fmt.Fprintf(res, "data: %s\n\n", data)
	}
}
