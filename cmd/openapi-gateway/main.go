package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/golden-vcr/openapi-go/apilog"
	"github.com/golden-vcr/openapi-go/db"
	"github.com/golden-vcr/openapi-go/entities"
	"github.com/golden-vcr/openapi-go/entry"
	"github.com/golden-vcr/openapi-go/gateway"
	"github.com/golden-vcr/openapi-go/hmac"
	"github.com/golden-vcr/openapi-go/replay"
	"github.com/golden-vcr/openapi-go/rmq"
)

type Config struct {
	LogLevel slog.Level `envconfig:"LOG_LEVEL" default:"info"`

	BindAddr   string `envconfig:"BIND_ADDR"`
	ListenPort int    `envconfig:"LISTEN_PORT" default:"5010"`
	GrpcPort   uint16 `envconfig:"GRPC_PORT" default:"5011"`

	AppSecrets      []string      `envconfig:"APP_SECRETS" required:"true"`
	EntityGrants    []string      `envconfig:"ENTITY_GRANTS"`
	EntityTables    []string      `envconfig:"ENTITY_TABLES"`
	IPAllowlist     []string      `envconfig:"IP_ALLOWLIST"`
	TimestampWindow time.Duration `envconfig:"TIMESTAMP_WINDOW" default:"5m"`
	NonceTTL        time.Duration `envconfig:"NONCE_TTL" default:"10m"`
	NonceStore      string        `envconfig:"NONCE_STORE" default:"memory"`
	EntityStore     string        `envconfig:"ENTITY_STORE" default:"memory"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	EventBufferSize int           `envconfig:"EVENT_BUFFER_SIZE" default:"1024"`

	DatabaseHost     string `envconfig:"PGHOST" default:"localhost"`
	DatabasePort     int    `envconfig:"PGPORT" default:"5432"`
	DatabaseName     string `envconfig:"PGDATABASE" default:"openapi"`
	DatabaseUser     string `envconfig:"PGUSER" default:"openapi"`
	DatabasePassword string `envconfig:"PGPASSWORD"`
	DatabaseSslMode  string `envconfig:"PGSSLMODE"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RmqHost     string `envconfig:"RMQ_HOST"`
	RmqPort     int    `envconfig:"RMQ_PORT" default:"5672"`
	RmqVhost    string `envconfig:"RMQ_VHOST"`
	RmqUser     string `envconfig:"RMQ_USER" default:"guest"`
	RmqPassword string `envconfig:"RMQ_PASSWORD" default:"guest"`
}

func main() {
	app := entry.NewApplication("openapi-gateway")
	defer app.Stop()
	ctx := app.Context()

	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		app.Fail("Failed to load config", err)
	}
	app.SetLogLevel(config.LogLevel)

	secrets := hmac.StaticSecrets{}
	if err := secrets.Insert(config.AppSecrets); err != nil {
		app.Fail("Failed to parse APP_SECRETS", err)
	}
	grants, err := gateway.ParseGrants(config.EntityGrants)
	if err != nil {
		app.Fail("Failed to parse ENTITY_GRANTS", err)
	}
	allowlist, err := gateway.ParseAllowlist(config.IPAllowlist)
	if err != nil {
		app.Fail("Failed to parse IP_ALLOWLIST", err)
	}

	// Connect to postgres only if a store needs it
	var pg *sql.DB
	if config.NonceStore == "postgres" || config.EntityStore == "postgres" {
		pg, err = db.Open(ctx, db.FormatConnectionString(
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
	}

	nonces, err := openNonceStore(ctx, app, &config, pg)
	if err != nil {
		app.Fail("Failed to open nonce store", err)
	}

	var store entities.Store
	switch config.EntityStore {
	case "memory":
		store = entities.NewMemoryStore(config.EntityTables)
	case "postgres":
		store = entities.NewPostgresStore(pg, config.EntityTables)
	default:
		app.Fail("Failed to open entity store", fmt.Errorf("unsupported ENTITY_STORE '%s'", config.EntityStore))
	}

	// Publish API call events to RabbitMQ if configured, otherwise just log them
	var recorder apilog.Recorder = apilog.NopRecorder{}
	if config.RmqHost != "" {
		conn, err := rmq.Dial(rmq.FormatConnectionString(
			config.RmqHost,
			config.RmqPort,
			config.RmqVhost,
			config.RmqUser,
			config.RmqPassword,
		), "openapi-gateway")
		if err != nil {
			app.Fail("Failed to connect to AMQP server", err)
		}
		defer conn.Close()
		publisher, err := newPublisher(app, conn, config.EventBufferSize)
		if err != nil {
			app.Fail("Failed to initialize API call log producers", err)
		}
		go publisher.Run(ctx)
		recorder = publisher
	} else {
		app.Log().Info("RMQ_HOST is not set; API call events will not be published")
	}

	verifier := hmac.NewVerifier(secrets,
		hmac.WithTimestampWindow(config.TimestampWindow),
		hmac.WithNonceStore(nonces, config.NonceTTL),
	)

	cfg := gateway.Config{
		Verifier:     verifier,
		Store:        store,
		Recorder:     recorder,
		Grants:       grants,
		Allowlist:    allowlist,
		MaxBodyBytes: config.MaxBodyBytes,
	}
	grpcServer := gateway.NewGRPCServer(app.Log(), cfg)
	go entry.RunGRPCServer(ctx, app.Log(), grpcServer, config.BindAddr, config.GrpcPort)

	entry.RunServer(app, gateway.NewServer(cfg), config.BindAddr, config.ListenPort)
}

func openNonceStore(ctx context.Context, app entry.Application, config *Config, pg *sql.DB) (hmac.NonceStore, error) {
	switch config.NonceStore {
	case "memory":
		return replay.NewMemoryStore(), nil
	case "postgres":
		s := replay.NewPostgresStore(pg)
		go purgeExpiredNonces(ctx, app, s, config.NonceTTL)
		return s, nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{config.RedisAddr},
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
		}
		return replay.NewRedisStore(client), nil
	}
	return nil, fmt.Errorf("unsupported NONCE_STORE '%s'", config.NonceStore)
}

// purgeExpiredNonces periodically deletes nonce records that can no longer be replayed
func purgeExpiredNonces(ctx context.Context, app entry.Application, s *replay.PostgresStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			numPurged, err := s.Purge(ctx)
			if err != nil {
				app.Log().Error("Failed to purge expired nonces", "error", err)
				continue
			}
			app.Log().Debug("Purged expired nonces", "numPurged", numPurged)
		}
	}
}

// newPublisher returns a publisher that sends each API call event both to the live
// fanout exchange and to the archive work queue
func newPublisher(app entry.Application, conn *amqp.Connection, bufferSize int) (*apilog.Publisher, error) {
	live, err := apilog.Queue.NewProducer(conn)
	if err != nil {
		return nil, err
	}
	archive, err := apilog.ArchiveQueue.NewProducer(conn)
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	return apilog.NewPublisher(app.Log().With("hostname", hostname), bufferSize, live, archive), nil
}
