package apilog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golden-vcr/openapi-go/rmq"
)

// Recorder accepts events describing gateway calls. Recording is best-effort: a failure
// to record is logged but never affects the response to the call.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

const (
	DefaultBufferSize     = 1024
	DefaultPublishTimeout = 5 * time.Second
)

// Publisher is a Recorder that hands events to a background goroutine for publishing,
// so that a slow broker never delays a response. Events are dropped, with a warning,
// once the buffer is full.
type Publisher struct {
	producers []rmq.Producer
	logger    *slog.Logger
	events    chan Event
	timeout   time.Duration
}

// NewPublisher returns a Publisher that sends every event to each of producers. Events
// are only published while Run is running.
func NewPublisher(logger *slog.Logger, bufferSize int, producers ...rmq.Producer) *Publisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Publisher{
		producers: producers,
		logger:    logger,
		events:    make(chan Event, bufferSize),
		timeout:   DefaultPublishTimeout,
	}
}

func (p *Publisher) Record(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("Dropped API call event; publish buffer is full",
			"appId", ev.AppId,
			"path", ev.Path,
		)
	}
}

// Run publishes buffered events until ctx is done, then publishes whatever remains in
// the buffer before returning
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-p.events:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(ev Event) {
	for _, producer := range p.producers {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := producer.Send(ctx, ev)
		cancel()
		if err != nil {
			p.logger.Error("Failed to publish API call event",
				"error", err,
				"appId", ev.AppId,
				"path", ev.Path,
			)
		}
	}
}

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, ev Event) {}

// MemoryRecorder retains every event in memory, in the order recorded
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(ctx context.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of the events recorded so far
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

var (
	_ Recorder = (*Publisher)(nil)
	_ Recorder = NopRecorder{}
	_ Recorder = (*MemoryRecorder)(nil)
)
