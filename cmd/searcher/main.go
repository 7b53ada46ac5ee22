package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/redis"
)

const localCacheSize = 10000

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index", cfg.Indexer.IndexPath())

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.Listen(fmt.Sprintf(":%d", cfg.Metrics.Port), metrics.Handler())
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	engine, err := openEngine(cfg, m)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process result cache", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if queryCache == nil {
		queryCache = cache.New(cache.NewLocalStore(localCacheSize, cfg.Redis.CacheTTL), cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "backend", "local", "size", localCacheSize, "ttl", cfg.Redis.CacheTTL)
	}

	rl := reloader.New(engine, queryCache, cfg.Indexer.IndexPath(), cfg.Server.ReloadTimeout)
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexReload, rl.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
		defer consumer.Close()
		slog.Info("reload notifications enabled", "topic", cfg.Kafka.Topics.IndexReload)
	}

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(func() (int, int) {
		s := engine.Stats()
		return s.Documents, s.Terms
	}))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	}
	if consumer != nil {
		checker.Register("kafka", health.PingCheck(consumer.Ping, false))
	}

	h := handler.New(engine, queryCache, rl, m, handler.Limits{
		DefaultTopK: cfg.Ranking.DefaultTopK,
		MaxTopK:     cfg.Ranking.MaxTopK,
	})

	limiter := ratelimit.New(time.Minute)
	defer limiter.Stop()

	api := http.NewServeMux()
	h.Register(api)
	admin := http.NewServeMux()
	h.RegisterAdmin(admin)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", middleware.Chain(api,
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)),
		middleware.RateLimit(limiter, m, "search", cfg.Server.SearchPerMinute),
		middleware.Timeout(cfg.Server.RequestTimeout),
	))
	mux.Handle("/api/v1/index/reload", middleware.Chain(admin,
		middleware.AdminToken(cfg.Server.AdminToken),
		middleware.RateLimit(limiter, m, "reload", cfg.Server.ReloadPerMinute),
	))
	if cfg.Server.AdminToken == "" {
		slog.Warn("reload endpoint is not protected by an admin token")
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: max(cfg.Server.WriteTimeout, cfg.Server.ReloadTimeout+5*time.Second),
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// openEngine loads the configured index file, or starts with an empty
// index when the file does not exist yet.
func openEngine(cfg *config.Config, m *metrics.Metrics) (*bm25.Engine, error) {
	var segOpts []tokenizer.MixedOption
	if cfg.Ranking.NormalizeWidth {
		segOpts = append(segOpts, tokenizer.WithWidthFolding())
	}
	seg, err := tokenizer.NewMixed(segOpts...)
	if err != nil {
		return nil, err
	}
	opts := []bm25.Option{
		bm25.WithSegmenter(seg),
		bm25.WithBuildWorkers(cfg.Indexer.BuildWorkers),
		bm25.WithMetrics(m),
	}

	path := cfg.Indexer.IndexPath()
	engine, err := bm25.Load(path, opts...)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("index file not found, serving an empty index until reload", "path", path)
		return bm25.New(bm25.Params{
			K1:        cfg.Ranking.K1,
			B:         cfg.Ranking.B,
			Lowercase: cfg.Ranking.Lowercase,
		}, opts...)
	}
	return engine, err
}
