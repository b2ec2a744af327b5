package entry

import (
	"context"
	"log/slog"
	"sync"
)

type contextKey int

const (
	requestIdKey contextKey = iota
	logStateKey
)

// logState holds the logger for a single request. It's shared by pointer so that
// handlers further down the chain can attach attributes that will also appear in the
// final "Request finished" message.
type logState struct {
	mu     sync.Mutex
	logger *slog.Logger
}

func newContext(ctx context.Context, requestId string, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, requestIdKey, requestId)
	return context.WithValue(ctx, logStateKey, &logState{logger: logger})
}

// Logger returns the request-scoped logger stored in ctx, or slog.Default() if ctx
// doesn't belong to a request handled by Middleware or GRPCServerLogging
func Logger(ctx context.Context) *slog.Logger {
	if s, ok := ctx.Value(logStateKey).(*logState); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.logger
	}
	return slog.Default()
}

// Annotate adds attributes to the request-scoped logger in ctx. It has no effect if ctx
// carries no such logger.
func Annotate(ctx context.Context, args ...any) {
	if s, ok := ctx.Value(logStateKey).(*logState); ok {
		s.mu.Lock()
		s.logger = s.logger.With(args...)
		s.mu.Unlock()
	}
}

// RequestId returns the ID assigned to the request being handled, if any
func RequestId(ctx context.Context) string {
	requestId, _ := ctx.Value(requestIdKey).(string)
	return requestId
}
