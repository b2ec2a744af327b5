package entry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GRPCServerLogging is the gRPC equivalent of Middleware. It should be chained ahead of
// any interceptor that calls Annotate.
func GRPCServerLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		// Check for an existing x-request-id header; and generate one if not found
		requestId := ""
		if values := metadata.ValueFromIncomingContext(ctx, "x-request-id"); len(values) > 0 {
			requestId = values[0]
		}
		if requestId == "" {
			requestId = uuid.NewString()
		}

		remoteAddr := ""
		if p, ok := peer.FromContext(ctx); ok {
			remoteAddr = p.Addr.String()
		}

		reqLogger := logger.With(
			"requestId", requestId,
			"grpcMethod", info.FullMethod,
			"remoteAddr", remoteAddr,
		)
		reqLogger.Debug("Handling request")

		ctx = newContext(ctx, requestId, reqLogger)
		start := time.Now()
		m, err := handler(ctx, req)
		elapsed := time.Since(start)

		l := Logger(ctx).With("elapsedMilliseconds", float64(elapsed.Nanoseconds())/float64(time.Millisecond))
		if err != nil {
			l = l.With("error", err)
			if grpcErr, ok := status.FromError(err); ok {
				l = l.With("grpcStatusCode", grpcErr.Code().String())
			}
			l.Error("Request finished with error")
		} else {
			l.Info("Request finished OK")
		}

		// Pass through the original result value and error unchanged
		return m, err
	}
}
