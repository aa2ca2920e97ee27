package main

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/ugclab/ugc-pipeline/internal/archive"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/collaborator"
	"github.com/ugclab/ugc-pipeline/internal/config"
	"github.com/ugclab/ugc-pipeline/internal/events"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/pkg/log"
	"github.com/ugclab/ugc-pipeline/pkg/migrations"
	"go.uber.org/zap"
)

const (
	eventsWriterStdout = "stdout"
	eventsWriterRedis  = "redis"
	eventsWriterNone   = "none"

	redisStreamMaxLen = 10000
)

// loadConfig reads the configuration and installs the global logger. The
// returned func flushes the logger.
func loadConfig() (*config.Config, func(), error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.New(files...)
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}
	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func newRedisClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// newStore opens the job store of the configured database type, migrating
// sql databases first when asked to.
func newStore(cfg *config.Config, c *catalog.Catalog, migrate bool) (store.Store, error) {
	switch cfg.Database.Type {
	case config.DBTypeMemory:
		return store.NewMemoryStore(c), nil
	case config.DBTypeRedis:
		return store.NewRedisStore(newRedisClient(cfg), c), nil
	case config.DBTypeSqlite, config.DBTypePostgres:
		db, err := store.InitDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing data store: %w", err)
		}
		s := store.NewStore(db, c)
		if migrate {
			if err := migrations.MigrateStore(db, cfg); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("running migrations: %w", err)
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}

func newStageRunner(cfg *config.Config) pipeline.StageRunner {
	if cfg.Pipeline.CollaboratorURL == "" {
		zap.S().Named("pipeline_api").Warnw("no collaborator url configured, stages are simulated", "latency", cfg.Pipeline.SimulatedLatency)
		return collaborator.NewSimulatedRunner(cfg.Pipeline.SimulatedLatency)
	}
	return collaborator.NewHTTPRunner(cfg.Pipeline.CollaboratorURL, cfg.Pipeline.CollaboratorTimeout)
}

// newEventProducer returns nil when events are turned off.
func newEventProducer(cfg *config.Config) (*events.EventProducer, error) {
	switch cfg.Service.EventsWriter {
	case eventsWriterNone:
		return nil, nil
	case eventsWriterStdout, "":
		return events.NewEventProducer(&events.StdoutWriter{}), nil
	case eventsWriterRedis:
		return events.NewEventProducer(events.NewRedisStreamWriter(newRedisClient(cfg), redisStreamMaxLen)), nil
	default:
		return nil, fmt.Errorf("unknown events writer %q", cfg.Service.EventsWriter)
	}
}

func newArchiver(ctx context.Context, cfg *config.Config) (*archive.MinioArchiver, error) {
	a, err := archive.NewMinioArchiver(
		archive.WithEndpoint(cfg.Archive.Endpoint),
		archive.WithBucket(cfg.Archive.Bucket),
		archive.WithAccessKey(cfg.Archive.AccessKey),
		archive.WithSecretKey(cfg.Archive.SecretKey),
		archive.WithSSL(cfg.Archive.UseSSL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating archiver: %w", err)
	}
	if err := a.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("creating archive bucket: %w", err)
	}
	return a, nil
}

func orchestratorOptions(ctx context.Context, cfg *config.Config) ([]pipeline.Option, *events.EventProducer, error) {
	opts := []pipeline.Option{
		pipeline.WithRetryPolicy(pipeline.RetryPolicy{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			InitialBackoff: cfg.Pipeline.InitialBackoff,
			MaxBackoff:     cfg.Pipeline.MaxBackoff,
		}),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
	}

	producer, err := newEventProducer(cfg)
	if err != nil {
		return nil, nil, err
	}
	if producer != nil {
		opts = append(opts, pipeline.WithEventSink(producer))
	}

	if cfg.Archive.Enabled {
		a, err := newArchiver(ctx, cfg)
		if err != nil {
			return nil, producer, err
		}
		opts = append(opts, pipeline.WithArchiver(a))
	}

	return opts, producer, nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
