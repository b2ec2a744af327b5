package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/kelseyhightower/envconfig"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/golden-vcr/openapi-go/apilog"
	"github.com/golden-vcr/openapi-go/db"
	"github.com/golden-vcr/openapi-go/entry"
	"github.com/golden-vcr/openapi-go/rmq"
	"github.com/golden-vcr/openapi-go/sse"
)

type Config struct {
	LogLevel slog.Level `envconfig:"LOG_LEVEL" default:"info"`

	BindAddr    string `envconfig:"BIND_ADDR"`
	ListenPort  int    `envconfig:"LISTEN_PORT" default:"5012"`
	HistorySize int    `envconfig:"HISTORY_SIZE" default:"256"`
	Archive     bool   `envconfig:"ARCHIVE" default:"false"`

	DatabaseHost     string `envconfig:"PGHOST" default:"localhost"`
	DatabasePort     int    `envconfig:"PGPORT" default:"5432"`
	DatabaseName     string `envconfig:"PGDATABASE" default:"openapi"`
	DatabaseUser     string `envconfig:"PGUSER" default:"openapi"`
	DatabasePassword string `envconfig:"PGPASSWORD"`
	DatabaseSslMode  string `envconfig:"PGSSLMODE"`

	RmqHost     string `envconfig:"RMQ_HOST" required:"true"`
	RmqPort     int    `envconfig:"RMQ_PORT" default:"5672"`
	RmqVhost    string `envconfig:"RMQ_VHOST"`
	RmqUser     string `envconfig:"RMQ_USER" default:"guest"`
	RmqPassword string `envconfig:"RMQ_PASSWORD" default:"guest"`
}

func main() {
	app := entry.NewApplication("openapi-audit")
	defer app.Stop()
	ctx := app.Context()

	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		app.Fail("Failed to load config", err)
	}
	app.SetLogLevel(config.LogLevel)

	conn, err := rmq.Dial(rmq.FormatConnectionString(
		config.RmqHost,
		config.RmqPort,
		config.RmqVhost,
		config.RmqUser,
		config.RmqPassword,
	), "openapi-audit")
	if err != nil {
		app.Fail("Failed to connect to AMQP server", err)
	}
	defer conn.Close()

	consumer, err := apilog.Queue.NewConsumer(conn)
	if err != nil {
		app.Fail("Failed to initialize API call log consumer", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Recv(ctx)
	if err != nil {
		app.Fail("Failed to begin consuming API call events", err)
	}

	// Persist every event to postgres if enabled: each archived event is consumed by
	// exactly one audit process
	if config.Archive {
		pg, err := db.Open(ctx, db.FormatConnectionString(
			config.DatabaseHost,
			config.DatabasePort,
			config.DatabaseName,
			config.DatabaseUser,
			config.DatabasePassword,
			config.DatabaseSslMode,
		))
		if err != nil {
			app.Fail("Failed to connect to database", err)
		}
		defer pg.Close()
		if err := db.Migrate(ctx, pg); err != nil {
			app.Fail("Failed to migrate database", err)
		}
		go archiveEvents(ctx, app, conn, pg)
	}

	events := make(chan *apilog.Event, 32)
	go consumeEvents(ctx, app, deliveries, events)

	h := sse.NewHandler[*apilog.Event](ctx, events, sse.WithEventIds(eventId, config.HistorySize))
	h.Match = func(req *http.Request, ev *apilog.Event) bool {
		appId := req.URL.Query().Get("appId")
		return appId == "" || appId == ev.AppId
	}

	mux := http.NewServeMux()
	mux.Handle("GET /events", h)
	entry.RunServer(app, mux, config.BindAddr, config.ListenPort)
}

func eventId(ev *apilog.Event) string {
	if ev.RequestId != "" {
		return ev.RequestId
	}
	return ev.Nonce
}

// consumeEvents logs each API call event and forwards it to the SSE stream until the
// delivery channel is closed
func consumeEvents(ctx context.Context, app entry.Application, deliveries <-chan amqp.Delivery, events chan<- *apilog.Event) {
	defer close(events)
	for d := range deliveries {
		ev, err := apilog.ParseEvent(d.Body)
		if err != nil {
			app.Log().Error("Discarding malformed API call event", "error", err, "messageId", d.MessageId)
			d.Nack(false, false)
			continue
		}

		logger := app.Log().With(
			"appId", ev.AppId,
			"method", ev.Method,
			"path", ev.Path,
			"status", ev.Status,
			"errorCode", ev.ErrorCode,
			"elapsedMs", ev.ElapsedMs,
		)
		if ev.Outcome == apilog.OutcomeAccepted {
			logger.Info("API call accepted")
		} else {
			logger.Warn("API call rejected", "outcome", ev.Outcome)
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			d.Nack(false, true)
			return
		}
		d.Ack(false)
	}
	if ctx.Err() == nil {
		app.Fail("API call event consumer closed unexpectedly", nil)
	}
}

// archiveEvents stores each event from the archive queue in postgres. Events that fail
// to store are requeued.
func archiveEvents(ctx context.Context, app entry.Application, conn *amqp.Connection, pg *sql.DB) {
	consumer, err := apilog.ArchiveQueue.NewConsumer(conn)
	if err != nil {
		app.Fail("Failed to initialize API call archive consumer", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Recv(ctx)
	if err != nil {
		app.Fail("Failed to begin consuming archived API call events", err)
	}

	archive := apilog.NewArchive(pg)
	for d := range deliveries {
		ev, err := apilog.ParseEvent(d.Body)
		if err != nil {
			app.Log().Error("Discarding malformed API call event", "error", err, "messageId", d.MessageId)
			d.Nack(false, false)
			continue
		}
		inserted, err := archive.Insert(ctx, d.MessageId, ev)
		if err != nil {
			app.Log().Error("Failed to archive API call event", "error", err, "messageId", d.MessageId)
			d.Nack(false, true)
			continue
		}
		if !inserted {
			app.Log().Debug("API call event was already archived", "messageId", d.MessageId)
		}
		d.Ack(false)
	}
	if ctx.Err() == nil {
		app.Fail("API call archive consumer closed unexpectedly", nil)
	}
}
