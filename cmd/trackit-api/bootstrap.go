package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackIt/config"
	"github.com/BearBump/TrackIt/internal/api/httpapi"
	"github.com/BearBump/TrackIt/internal/broker/kafka"
	"github.com/BearBump/TrackIt/internal/cache/rediscache"
	"github.com/BearBump/TrackIt/internal/integrations/geocoder/nominatimhttp"
	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/BearBump/TrackIt/internal/integrations/provider/fake"
	"github.com/BearBump/TrackIt/internal/integrations/provider/ship24http"
	"github.com/BearBump/TrackIt/internal/services/locations"
	"github.com/BearBump/TrackIt/internal/services/packages"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/BearBump/TrackIt/internal/storage/pgstore"
)

type trackItAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackItAPIOpts
	handler  *httpapi.Handler
	svc      *packages.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapTrackItAPI() *trackItAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.TrackIt.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackIt.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "trackit-api"
	}
	topic := cfg.Kafka.PackageUpdatedTopicName
	if topic == "" {
		topic = "package.updated"
	}
	summaryTTL := time.Duration(cfg.TrackIt.SummaryTTLSeconds) * time.Second
	if summaryTTL <= 0 {
		summaryTTL = 10 * time.Minute
	}

	connString := postgresConnString(cfg)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	locCache := locations.NewCache(st, nominatimhttp.New(cfg.TrackIt.GeocoderBaseURL))
	if cfg.TrackIt.GeocoderRateLimitPerMinute > 0 {
		locCache = locCache.WithRateLimiter(rl, int64(cfg.TrackIt.GeocoderRateLimitPerMinute))
	}
	if cfg.TrackIt.GeocoderTimeoutSeconds > 0 {
		locCache = locCache.WithGeocodeTimeout(time.Duration(cfg.TrackIt.GeocoderTimeoutSeconds) * time.Second)
	}
	admin := locations.NewAdmin(locCache)

	// Engine в API-процессе используется только read-only (таймлайн с
	// координатами); sync гоняет воркер.
	engine := syncsvc.NewEngine(st, newProviderClient(cfg), locCache)

	svc := packages.New(st, rc, summaryTTL)
	handler := httpapi.NewHandler(svc, engine, admin)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &trackItAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: trackItAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		handler:  handler,
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func newProviderClient(cfg *config.Config) provider.Client {
	if cfg.TrackIt.ProviderBaseURL != "" && cfg.TrackIt.ProviderMode == "ship24" {
		return ship24http.New(cfg.TrackIt.ProviderBaseURL, cfg.TrackIt.ProviderAPIKey)
	}
	return fake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackItAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *trackItAPIApp) Run() error {
	return runTrackItAPI(a.ctx, a.opts, a.handler, a.svc, a.consumer)
}
