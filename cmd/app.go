// =============================================================================
// CAPCEE Ingestion - Application Wiring
// =============================================================================
//
// newApp builds the collaborators shared by the commands:
//
//   config -> logger -> PostgreSQL pool -> repositories
//          -> content store (local directory or MinIO)
//          -> Redis client (when configured) -> queue (memory or Redis)
//          -> mapping registry (YAML files or database, behind an LRU cache)
//          -> notifier (log, plus Redis pub/sub when configured)
//          -> converter and ingestion service
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/callrodry/capcee-proyecto/internal/config"
	"github.com/callrodry/capcee-proyecto/internal/converter"
	"github.com/callrodry/capcee-proyecto/internal/database"
	"github.com/callrodry/capcee-proyecto/internal/ingest"
	"github.com/callrodry/capcee-proyecto/internal/mapping"
	"github.com/callrodry/capcee-proyecto/internal/notify"
	"github.com/callrodry/capcee-proyecto/internal/queue"
	"github.com/callrodry/capcee-proyecto/internal/repository"
	"github.com/callrodry/capcee-proyecto/internal/sheet"
	"github.com/callrodry/capcee-proyecto/pkg/utils"
)

// app holds the wired collaborators of one command run.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool      *pgxpool.Pool
	store     *repository.Store
	redis     *redis.Client
	queue     queue.Queue
	content   utils.ContentStore
	registry  mapping.Registry
	converter *converter.Converter
	service   *ingest.Service
}

// loadConfig reads the configuration file and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, config.SetupLogger(cfg), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newApp connects every dependency. The caller must Close the app.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	// STEP 1: Database.
	a.pool, err = database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.store = repository.NewStore(a.pool)

	// STEP 2: Redis, only when an address is configured.
	if cfg.Redis.Addr != "" {
		a.redis, err = queue.NewRedisClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	// STEP 3: Content store.
	a.content, err = newContentStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	// STEP 4: Queue.
	switch cfg.Processing.Queue {
	case "redis":
		a.queue = queue.NewRedisQueue(a.redis, cfg.Redis.QueueKey)
	default:
		a.queue = queue.NewMemoryQueue(1024)
	}

	// STEP 5: Mapping registry.
	var source mapping.Registry
	switch cfg.Mappings.Source {
	case "database":
		source = a.store.Mappings
	default:
		reg, err := mapping.LoadDir(cfg.Mappings.Dir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load mappings from %s: %w", cfg.Mappings.Dir, err)
		}
		source = reg
	}
	a.registry = mapping.NewCachedRegistry(source, cfg.Mappings.CacheSize, cfg.Mappings.CacheTTL)

	// STEP 6: Notifier, converter and service.
	notifier := notify.Multi{notify.NewLogNotifier(logger)}
	if a.redis != nil {
		notifier = append(notifier, notify.NewRedisNotifier(a.redis, cfg.Redis.EventsChannel, logger))
	}

	a.converter = converter.New(a.store, a.content, a.registry, notifier, converter.Options{
		ChunkSize:        cfg.Processing.ChunkSize,
		JobTimeout:       cfg.Processing.JobTimeout,
		MaxErrorMessages: cfg.Processing.MaxErrorMessages,
		Sheet:            sheet.Options{CSVDelimiter: cfg.Processing.CSVDelimiter},
	}, logger)

	a.service = ingest.NewService(ingest.Deps{
		Files:       a.store.Files,
		Records:     a.store.Records,
		Departments: a.store.Departments,
		Activity:    a.store.Activity,
		Content:     a.content,
		Queue:       a.queue,
	}, logger)

	logger.Debug("application wired",
		slog.String("queue", cfg.Processing.Queue),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("mappings", cfg.Mappings.Source),
	)
	return a, nil
}

func newContentStore(ctx context.Context, cfg config.StorageConfig) (utils.ContentStore, error) {
	if cfg.Backend == "minio" {
		m := cfg.MinIO
		store, err := utils.NewMinioStore(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.Secure, cfg.UseDateSubdirs)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	fm := utils.NewFileManager(cfg.Dir, cfg.UseDateSubdirs)
	if err := fm.EnsureDirectories(); err != nil {
		return nil, err
	}
	return fm, nil
}

// drainLocal runs the pipeline for the ids waiting in an in-process queue.
// Commands that enqueue and then exit use it so the memory queue is not
// lost; with Redis the workers pick the ids up instead.
func (a *app) drainLocal(ctx context.Context) error {
	mq, ok := a.queue.(*queue.MemoryQueue)
	if !ok {
		return nil
	}
	for mq.Len() > 0 {
		id, err := mq.Dequeue(ctx)
		if err != nil {
			return err
		}
		res, err := a.converter.Process(ctx, id)
		if err != nil {
			a.logger.Error("processing failed", slog.String("file_id", id), slog.String("error", err.Error()))
			continue
		}
		printResult(res)
	}
	return nil
}

// Close releases the connections.
func (a *app) Close() {
	if mq, ok := a.queue.(*queue.MemoryQueue); ok {
		mq.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
