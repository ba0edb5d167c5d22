package locations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackIt/internal/integrations/geocoder"
	"github.com/BearBump/TrackIt/internal/keylock"
	"github.com/BearBump/TrackIt/internal/locnorm"
	"github.com/BearBump/TrackIt/internal/models"
	"github.com/pkg/errors"
)

var ErrLocationNotFound = errors.New("location not found")

type Repository interface {
	GetLocation(ctx context.Context, key string) (*models.LocationEntry, error)
	UpsertLocation(ctx context.Context, l *models.LocationEntry) error
	IncrementUsage(ctx context.Context, key string) error
	ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Cache is the process-wide geocoding cache: one external lookup per unique
// normalized location string, failures sticky until an operator retries or
// sets an alias.
type Cache struct {
	repo Repository
	geo  geocoder.Client

	locks *keylock.KeyLock

	geocodeTimeout time.Duration
	rl             RateLimiter
	rlPerMinute    int64
}

func NewCache(repo Repository, geo geocoder.Client) *Cache {
	return &Cache{
		repo:           repo,
		geo:            geo,
		locks:          keylock.New(),
		geocodeTimeout: 10 * time.Second,
	}
}

// WithRateLimiter подключает лимитер вызовов внешнего геокодера
// (Nominatim: не больше запроса в секунду, держим бюджет по минутам).
func (c *Cache) WithRateLimiter(rl RateLimiter, perMinute int64) *Cache {
	if rl != nil && perMinute > 0 {
		c.rl = rl
		c.rlPerMinute = perMinute
	}
	return c
}

func (c *Cache) WithGeocodeTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.geocodeTimeout = d
	}
	return c
}

// Resolve возвращает запись кэша для сырой строки локации. Создаёт запись и
// делает ровно один внешний вызов при первом появлении ключа; failed-записи
// возвращаются как есть без повторного геокодинга. Для пустой строки
// возвращает (nil, nil) — "нет локации".
func (c *Cache) Resolve(ctx context.Context, rawLocation string) (*models.LocationEntry, error) {
	key := locnorm.Normalize(rawLocation)
	if key == "" {
		return nil, nil
	}

	// Per-key лок: второй вызов с тем же ключом дождётся результата
	// первого и возьмёт его из кэша вместо дублирующего внешнего вызова.
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, err := c.repo.GetLocation(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil && (entry.GeocodedAt != nil || entry.Failed) {
		return entry, nil
	}

	if entry == nil {
		entry = &models.LocationEntry{
			NormalizedKey: key,
			RawString:     rawLocation,
		}
	}
	if err := c.geocodeEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SetAlias записывает операторскую подсказку и сразу пробует геокодинг по
// тексту алиаса. Ошибка геокодинга не поднимается наверх: запись просто
// остаётся в failed-состоянии.
func (c *Cache) SetAlias(ctx context.Context, key, alias string) (*models.LocationEntry, error) {
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, err := c.repo.GetLocation(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrLocationNotFound
	}

	if alias == "" {
		entry.Alias = nil
	} else {
		entry.Alias = &alias
	}
	resetGeocode(entry)

	if err := c.geocodeEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Retry форсирует ровно одну попытку геокодинга независимо от прошлого
// failed-состояния; используется alias, если задан.
func (c *Cache) Retry(ctx context.Context, key string) (*models.LocationEntry, error) {
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, err := c.repo.GetLocation(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrLocationNotFound
	}

	resetGeocode(entry)
	if err := c.geocodeEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// IncrementUsage не возвращает ошибку: счётчик чисто наблюдательный и не
// должен ломать sync.
func (c *Cache) IncrementUsage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.repo.IncrementUsage(ctx, key); err != nil {
		slog.Warn("increment location usage", "key", key, "error", err.Error())
	}
}

func (c *Cache) List(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error) {
	return c.repo.ListLocations(ctx, failedOnly)
}

func resetGeocode(entry *models.LocationEntry) {
	entry.Latitude = nil
	entry.Longitude = nil
	entry.DisplayName = nil
	entry.CountryCode = nil
	entry.GeocodedAt = nil
	entry.Failed = false
}

// geocodeEntry делает один внешний вызов и сохраняет результат (успех или
// failed) в хранилище. Ошибка возврата — только от хранилища.
func (c *Cache) geocodeEntry(ctx context.Context, entry *models.LocationEntry) error {
	searchTerm := locnorm.SearchTerm(entry.RawString)
	if entry.Alias != nil && *entry.Alias != "" {
		searchTerm = *entry.Alias
	}

	c.waitQuota(ctx)

	gctx, cancel := context.WithTimeout(ctx, c.geocodeTimeout)
	res, err := c.geo.Geocode(gctx, searchTerm)
	cancel()

	if err != nil {
		// Таймаут и NoMatch равнозначны: sticky failure до явного retry.
		if !errors.Is(err, geocoder.ErrNoMatch) {
			slog.Warn("geocode failed", "key", entry.NormalizedKey, "error", err.Error())
		}
		entry.Failed = true
	} else {
		now := time.Now().UTC()
		entry.Latitude = &res.Latitude
		entry.Longitude = &res.Longitude
		entry.DisplayName = &res.DisplayName
		entry.CountryCode = &res.CountryCode
		entry.GeocodedAt = &now
		entry.Failed = false
	}

	return c.repo.UpsertLocation(ctx, entry)
}

// waitQuota придерживает внешний вызов, если минутный бюджет геокодера
// исчерпан. Best-effort: ошибка лимитера не блокирует lookup.
func (c *Cache) waitQuota(ctx context.Context) {
	if c.rl == nil {
		return
	}
	minuteKey := fmt.Sprintf("rl:geocoder:%s", time.Now().UTC().Format("200601021504"))
	allowed, n, err := c.rl.Allow(ctx, minuteKey, c.rlPerMinute, 70*time.Second)
	if err != nil {
		slog.Warn("geocoder rate limiter", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("geocoder rate limit exceeded", "count", n)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
	}
}
