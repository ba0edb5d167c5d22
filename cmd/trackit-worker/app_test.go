package main

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/TrackIt/config"
	"github.com/BearBump/TrackIt/internal/cache/rediscache"
	"github.com/BearBump/TrackIt/internal/integrations/geocoder"
	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/BearBump/TrackIt/internal/integrations/provider/fake"
	"github.com/BearBump/TrackIt/internal/integrations/provider/ship24http"
	"github.com/BearBump/TrackIt/internal/models"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/BearBump/TrackIt/internal/storage/pgstore"
	"github.com/stretchr/testify/require"
)

type fakeWorkerRepo struct{}

func (r *fakeWorkerRepo) GetPackageByID(ctx context.Context, id uint64) (*models.Package, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) ListTrackingEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) ApplySyncUpdate(ctx context.Context, upd pgstore.SyncUpdate) error {
	return nil
}
func (r *fakeWorkerRepo) GetLocationsByKeys(ctx context.Context, keys []string) (map[string]*models.LocationEntry, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) ClaimDuePackages(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Package, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) GetLocation(ctx context.Context, key string) (*models.LocationEntry, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) UpsertLocation(ctx context.Context, l *models.LocationEntry) error {
	return nil
}
func (r *fakeWorkerRepo) IncrementUsage(ctx context.Context, key string) error { return nil }
func (r *fakeWorkerRepo) ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error) {
	return nil, nil
}

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

type noopGeocoder struct{}

func (noopGeocoder) Geocode(ctx context.Context, query string) (geocoder.Result, error) {
	return geocoder.Result{}, geocoder.ErrNoMatch
}

func TestDefaultWorkerFactories_SelectProviderClient(t *testing.T) {
	f := defaultWorkerFactories()

	cfgShip24 := &config.Config{
		TrackIt: config.TrackItConfig{
			ProviderBaseURL: "https://api.ship24.com",
			ProviderMode:    "ship24",
			ProviderAPIKey:  "k",
		},
	}
	c1 := f.newProvider(cfgShip24)
	_, ok := c1.(*ship24http.Client)
	require.True(t, ok)

	cfgFallback := &config.Config{
		TrackIt: config.TrackItConfig{ProviderBaseURL: "https://api.ship24.com"},
	}
	c2 := f.newProvider(cfgFallback)
	_, ok = c2.(*fake.Client)
	require.True(t, ok)

	c3 := f.newProvider(&config.Config{})
	_, ok = c3.(*fake.Client)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
	require.NotNil(t, f.newCache(cfg))
	require.NotNil(t, f.newGeocoder(cfg))
}

func TestRunTrackItWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (workerRepo, func(), error) {
			return &fakeWorkerRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) syncsvc.Publisher {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) syncsvc.RateLimiter {
			return nil
		},
		newCache: func(cfg *config.Config) *rediscache.RedisCache {
			return nil
		},
		newProvider: func(cfg *config.Config) provider.Client {
			return fake.New() // не будет вызываться, т.к. контекст отменён
		},
		newGeocoder: func(cfg *config.Config) geocoder.Client {
			return noopGeocoder{}
		},
	}

	cfg := &config.Config{
		Kafka:   config.KafkaConfig{PackageUpdatedTopicName: "t"},
		TrackIt: config.TrackItConfig{WorkerPollIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackItWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}
