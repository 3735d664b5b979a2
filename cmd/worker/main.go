package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/crowdsense/streamd/internal/config"
	"github.com/crowdsense/streamd/internal/elastic"
	"github.com/crowdsense/streamd/internal/ingest"
	"github.com/crowdsense/streamd/internal/logging"
	"github.com/crowdsense/streamd/internal/ops"
	"github.com/crowdsense/streamd/internal/projects"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/storage"
	"github.com/crowdsense/streamd/internal/tokenize"
)

func setupConfig() *config.Config {
	// Use log before slog is initialized
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupElastic(ctx context.Context, cfg *config.Config) *elastic.Client {
	client, err := elastic.NewClient(cfg.ElasticsearchAddrs, cfg.ElasticsearchUser, cfg.ElasticsearchPassword)
	if err != nil {
		slog.Error("Failed to create Elasticsearch client", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		// The cluster may come up later; batches land in replay files
		// until then.
		slog.Warn("Elasticsearch not reachable at startup", "error", err)
	}
	return client
}

func setupObjectStore(ctx context.Context, cfg *config.Config) storage.ObjectPutter {
	if cfg.S3Bucket == "" {
		slog.Warn("No S3 bucket configured, archive batches stay buffered")
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		slog.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	return s3.NewFromConfig(awsCfg)
}

func runGracefulShutdown(cancel context.CancelFunc, srv *ops.Server, workers *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server shutdown error", "error", err)
		}

		workers.Wait()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Worker starting", "env", cfg.AppEnv, "port", cfg.Port, "workers", cfg.WorkerCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := setupRedis(ctx, cfg)
	defer func() { _ = redisClient.Close() }()

	esClient := setupElastic(ctx, cfg)
	putter := setupObjectStore(ctx, cfg)

	replay, err := elastic.NewReplayStore(cfg.ReplayDir)
	if err != nil {
		slog.Error("Failed to create replay store", "error", err)
		os.Exit(1)
	}
	spill, err := ingest.NewSpillStore(cfg.SpillDir)
	if err != nil {
		slog.Error("Failed to create spill store", "error", err)
		os.Exit(1)
	}

	source := projects.NewFileSource(cfg.ProjectsFile)
	descriptors, err := source.Projects(ctx)
	if err != nil {
		slog.Error("Failed to load project descriptors", "error", err)
		os.Exit(1)
	}
	slog.Info("Projects loaded", "count", len(descriptors))

	ns := cfg.RedisNamespace
	inbound := redis.NewListQueue(redisClient, redis.Key(ns, "inbound"))
	archiveBuf := redis.NewBufferGroup(redisClient, redis.Key(ns, "s3-queue"))
	indexBuf := redis.NewBufferGroup(redisClient, redis.Key(ns, "es-queue"))
	counts := redis.NewDailyCounts(redisClient, redis.Key(ns, "counts"), clock)

	registry := ingest.NewRegistry(redisClient, cfg, esClient, esClient, tokenize.HeuristicTagger{}, clock, nil)
	// Prime the registry so periodic sweeps cover every configured
	// project, not just ones this worker has seen traffic for.
	for _, d := range descriptors {
		registry.For(d)
	}

	archiver := storage.NewArchiver(putter, archiveBuf, cfg.S3Bucket, clock)
	indexer := ingest.NewIndexer(indexBuf, esClient, replay)
	pipeline := ingest.NewPipeline(source, registry, archiver, indexBuf, counts, spill, nil)
	scheduler := ingest.NewScheduler(cfg, registry, archiver, indexer, counts, clock)

	var workers sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		consumer := ingest.NewConsumer(inbound, pipeline, i)
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Run(ctx)
		}()
	}

	go scheduler.Run(ctx)

	srv := ops.NewServer(cfg, redisClient, esClient, source, inbound, counts, clock)
	done := runGracefulShutdown(cancel, srv, &workers)

	slog.Info("Ops server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Ops server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Worker stopped")
}
