package entry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// RunGRPCServer blocks while a gRPC server application runs
func RunGRPCServer(ctx context.Context, logger *slog.Logger, s *grpc.Server, bindAddr string, listenPort uint16) {
	addr := fmt.Sprintf("%s:%d", bindAddr, listenPort)
	listenConfig := net.ListenConfig{}
	lis, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to listen on %s", addr), "error", err)
		os.Exit(1)
	}

	logger.Info("Now serving gRPC", "bindAddr", bindAddr, "listenPort", listenPort)
	var wg errgroup.Group
	wg.Go(func() error { return s.Serve(lis) })

	// Run until the application-level context is done
	<-ctx.Done()
	cancelErr := context.Cause(ctx)
	if cancelErr != nil && cancelErr != ctx.Err() {
		logger.Error("Closing gRPC server due to application error", "error", cancelErr)
	} else {
		logger.Info("Application is shutting down cleanly; closing gRPC server")
	}
	s.GracefulStop()

	if err := wg.Wait(); err != nil {
		logger.Error("Error running gRPC server", "error", err)
		os.Exit(1)
	}
	logger.Info("gRPC server closed")
}
