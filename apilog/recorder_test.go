package apilog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu    sync.Mutex
	sent  []any
	err   error
	block bool
}

func (p *fakeProducer) Send(ctx context.Context, data any) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, data)
	return nil
}

func (p *fakeProducer) numSent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// syncBuffer is a bytes.Buffer that's safe to log to from the publishing goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func Test_Publisher(t *testing.T) {
	ev := Event{
		AppId:      "test_app_001",
		Method:     http.MethodGet,
		Path:       "/openapi/v1/entities/product",
		Status:     http.StatusOK,
		Outcome:    OutcomeAccepted,
		Nonce:      "0123456789abcdef0123456789abcdef",
		SignedAt:   1700000000,
		ReceivedAt: time.Unix(1700000001, 0).UTC(),
	}

	t.Run("publishes each event to every producer", func(t *testing.T) {
		live, archive := &fakeProducer{}, &fakeProducer{}
		p := NewPublisher(slog.Default(), 0, live, archive)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		p.Record(context.Background(), ev)
		assert.Eventually(t, func() bool {
			return live.numSent() == 1 && archive.numSent() == 1
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, ev, live.sent[0])
	})
	t.Run("logs rather than propagates publish failures", func(t *testing.T) {
		buf := &syncBuffer{}
		p := NewPublisher(slog.New(slog.NewJSONHandler(buf, nil)), 0, &fakeProducer{err: errors.New("channel closed")})
		p.Record(context.Background(), ev)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Run(ctx)
		assert.Contains(t, buf.String(), "Failed to publish API call event")
		assert.Contains(t, buf.String(), "channel closed")
		assert.Contains(t, buf.String(), "test_app_001")
	})
	t.Run("drops events once the buffer is full", func(t *testing.T) {
		buf := &syncBuffer{}
		producer := &fakeProducer{}
		p := NewPublisher(slog.New(slog.NewJSONHandler(buf, nil)), 1, producer)
		p.Record(context.Background(), ev)
		p.Record(context.Background(), ev)
		assert.Contains(t, buf.String(), "Dropped API call event")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Run(ctx)
		assert.Equal(t, 1, producer.numSent())
	})
	t.Run("a blocked broker delays neither Record nor shutdown indefinitely", func(t *testing.T) {
		buf := &syncBuffer{}
		p := NewPublisher(slog.New(slog.NewJSONHandler(buf, nil)), 0, &fakeProducer{block: true})
		p.timeout = 10 * time.Millisecond

		start := time.Now()
		for i := 0; i < 3; i++ {
			p.Record(context.Background(), ev)
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Run(ctx)
		assert.Contains(t, buf.String(), "context deadline exceeded")
	})
}

func Test_MemoryRecorder(t *testing.T) {
	ev := Event{
		Method: http.MethodGet,
		Path:   "/openapi/v1/entities/product",
		Status: http.StatusOK,
	}

	t.Run("memory recorder retains events in order", func(t *testing.T) {
		m := &MemoryRecorder{}
		m.Record(context.Background(), ev)
		second := ev
		second.Status = http.StatusUnauthorized
		m.Record(context.Background(), second)
		events := m.Events()
		require.Len(t, events, 2)
		assert.Equal(t, http.StatusOK, events[0].Status)
		assert.Equal(t, http.StatusUnauthorized, events[1].Status)
	})
}

func Test_ParseEvent(t *testing.T) {
	t.Run("decodes an event as published", func(t *testing.T) {
		want := Event{
			AppId:      "test_app_001",
			Method:     http.MethodPost,
			Path:       "/openapi/v1/entities/product",
			Status:     http.StatusUnauthorized,
			Outcome:    OutcomeRejected,
			ErrorCode:  "AUTH_SIGNATURE_INVALID",
			ReceivedAt: time.Unix(1700000000, 0).UTC(),
			ElapsedMs:  1.5,
		}
		data, err := json.Marshal(want)
		require.NoError(t, err)
		got, err := ParseEvent(data)
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	})
	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := ParseEvent([]byte("{"))
		assert.Error(t, err)
	})
	t.Run("rejects events without a method or path", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"status":200}`))
		assert.Error(t, err)
	})
}

func Test_OutcomeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{http.StatusOK, OutcomeAccepted},
		{http.StatusCreated, OutcomeAccepted},
		{http.StatusUnauthorized, OutcomeRejected},
		{http.StatusNotFound, OutcomeRejected},
		{http.StatusInternalServerError, OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeForStatus(tt.status))
		})
	}
}
