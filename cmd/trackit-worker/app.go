package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackIt/config"
	"github.com/BearBump/TrackIt/internal/broker/kafka"
	"github.com/BearBump/TrackIt/internal/cache/rediscache"
	"github.com/BearBump/TrackIt/internal/integrations/geocoder"
	"github.com/BearBump/TrackIt/internal/integrations/geocoder/nominatimhttp"
	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/BearBump/TrackIt/internal/integrations/provider/fake"
	"github.com/BearBump/TrackIt/internal/integrations/provider/ship24http"
	"github.com/BearBump/TrackIt/internal/services/locations"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/BearBump/TrackIt/internal/storage/pgstore"
)

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func kafkaAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)
}

func redisAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
}

// workerRepo объединяет всё, что воркеру нужно от хранилища.
type workerRepo interface {
	syncsvc.Repository
	syncsvc.ClaimRepository
	locations.Repository
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo workerRepo, closeFn func(), err error)
	newProducer    func(cfg *config.Config) syncsvc.Publisher
	newRateLimiter func(cfg *config.Config) syncsvc.RateLimiter
	newCache       func(cfg *config.Config) *rediscache.RedisCache
	newProvider    func(cfg *config.Config) provider.Client
	newGeocoder    func(cfg *config.Config) geocoder.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepo, func(), error) {
			st, err := pgstore.New(postgresConnString(cfg))
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) syncsvc.Publisher {
			return kafka.NewProducer([]string{kafkaAddr(cfg)})
		},
		newRateLimiter: func(cfg *config.Config) syncsvc.RateLimiter {
			return rediscache.NewRateLimiter(redisAddr(cfg))
		},
		newCache: func(cfg *config.Config) *rediscache.RedisCache {
			return rediscache.New(redisAddr(cfg))
		},
		newProvider: func(cfg *config.Config) provider.Client {
			// По умолчанию для демо — локальный fake; ship24 включается
			// конфигом, когда есть ключ.
			if cfg.TrackIt.ProviderBaseURL != "" && cfg.TrackIt.ProviderMode == "ship24" {
				return ship24http.New(cfg.TrackIt.ProviderBaseURL, cfg.TrackIt.ProviderAPIKey)
			}
			return fake.New()
		},
		newGeocoder: func(cfg *config.Config) geocoder.Client {
			return nominatimhttp.New(cfg.TrackIt.GeocoderBaseURL)
		},
	}
}

func RunTrackItWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.PackageUpdatedTopicName
	if topic == "" {
		topic = "package.updated"
	}

	pollInterval := time.Duration(cfg.TrackIt.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.TrackIt.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.TrackIt.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.TrackIt.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.TrackIt.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	summaryTTL := time.Duration(cfg.TrackIt.SummaryTTLSeconds) * time.Second
	if summaryTTL <= 0 {
		summaryTTL = 10 * time.Minute
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)

	locCache := locations.NewCache(repo, f.newGeocoder(cfg))
	if cfg.TrackIt.GeocoderRateLimitPerMinute > 0 {
		locCache = locCache.WithRateLimiter(rl, int64(cfg.TrackIt.GeocoderRateLimitPerMinute))
	}
	if cfg.TrackIt.GeocoderTimeoutSeconds > 0 {
		locCache = locCache.WithGeocodeTimeout(time.Duration(cfg.TrackIt.GeocoderTimeoutSeconds) * time.Second)
	}

	engine := syncsvc.NewEngine(repo, f.newProvider(cfg), locCache).
		WithPlanner(plannerFromConfig(cfg)).
		WithPublisher(producer, topic)
	if fetch := cfg.TrackIt.WorkerFetchTimeoutSeconds; fetch > 0 {
		engine = engine.WithFetchTimeout(time.Duration(fetch) * time.Second)
	}
	if f.newCache != nil {
		if rc := f.newCache(cfg); rc != nil {
			engine = engine.WithSummaryCache(rc, summaryTTL)
		}
	}

	p := syncsvc.NewPoller(repo, engine, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin)

	// HTTP-обвязка воркера (healthz/stats/trigger/docs) живёт рядом и
	// умирает вместе с контекстом.
	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.TrackIt.WorkerHTTPAddr,
			swaggerPath: workerSwaggerPath(),
			poller:      p,
			cfg:         cfg,
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("worker http server", "error", err.Error())
		}
	}()

	return p.Run(ctx)
}

func plannerFromConfig(cfg *config.Config) *syncsvc.Planner {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return syncsvc.NewPlanner(syncsvc.PlannerConfig{
		ActiveMinDelay: sec(cfg.TrackIt.NextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(cfg.TrackIt.NextCheckActiveMaxSeconds),
		IdleDelay:      sec(cfg.TrackIt.NextCheckIdleSeconds),
		Backoff1:       sec(cfg.TrackIt.Backoff1Seconds),
		Backoff2:       sec(cfg.TrackIt.Backoff2Seconds),
		Backoff3:       sec(cfg.TrackIt.Backoff3Seconds),
		Backoff4:       sec(cfg.TrackIt.Backoff4Seconds),
	}, nil)
}
