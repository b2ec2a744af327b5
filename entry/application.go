package entry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Application carries the process-wide context and logger of one of the openapi
// binaries
type Application interface {
	Context() context.Context
	Log() *slog.Logger

	// SetLogLevel changes the minimum level logged by Log and by slog.Default, typically
	// once the LOG_LEVEL config value has been loaded
	SetLogLevel(level slog.Level)

	Fail(message string, err error)
	Stop()
}

// NewApplication logs JSON to stdout, tagging every line with name and the process ID.
// Its context is canceled on SIGINT or SIGTERM.
func NewApplication(name string) Application {
	return newApplication(name, os.Stdout)
}

func newApplication(name string, w io.Writer) *application {
	level := &slog.LevelVar{}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).With(
		"app", name,
		"pid", os.Getpid(),
	)
	slog.SetDefault(logger)
	logger.Info("Process starting")

	ctx, close := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &application{
		ctx:      ctx,
		closeCtx: close,
		logger:   logger,
		level:    level,
		exit:     os.Exit,
	}
}

type application struct {
	ctx      context.Context
	closeCtx context.CancelFunc
	logger   *slog.Logger
	level    *slog.LevelVar
	exit     func(code int)
}

func (a *application) Context() context.Context {
	return a.ctx
}

func (a *application) Log() *slog.Logger {
	return a.logger
}

func (a *application) SetLogLevel(level slog.Level) {
	a.level.Set(level)
}

func (a *application) Fail(message string, err error) {
	a.logger.Error(message, "error", err)
	a.closeCtx()
	a.exit(1)
}

func (a *application) Stop() {
	a.logger.Info("Process stopping")
	a.closeCtx()
}
