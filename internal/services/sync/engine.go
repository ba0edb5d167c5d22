package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackIt/internal/broker/messages"
	"github.com/BearBump/TrackIt/internal/cache"
	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/BearBump/TrackIt/internal/keylock"
	"github.com/BearBump/TrackIt/internal/models"
	"github.com/BearBump/TrackIt/internal/storage/pgstore"
	"github.com/pkg/errors"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	// ErrInvalidTrackingNumber: номер не знает ни один курьер. Постоянная
	// ошибка, показывается пользователю, ретраить бессмысленно.
	ErrInvalidTrackingNumber = errors.New("invalid tracking number")
	// ErrProviderUnavailable: rate limit / таймаут / 5xx провайдера.
	// Временная, вызывающий пробует позже.
	ErrProviderUnavailable = errors.New("tracking provider unavailable")
)

type Repository interface {
	GetPackageByID(ctx context.Context, id uint64) (*models.Package, error)
	ListTrackingEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	ApplySyncUpdate(ctx context.Context, upd pgstore.SyncUpdate) error
	GetLocationsByKeys(ctx context.Context, keys []string) (map[string]*models.LocationEntry, error)
}

// LocationResolver — срез GeocodingCache, который нужен движку.
type LocationResolver interface {
	Resolve(ctx context.Context, rawLocation string) (*models.LocationEntry, error)
	IncrementUsage(ctx context.Context, key string)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Engine выполняет refresh одной посылки: fetch у провайдера, merge событий,
// геокодинг новых локаций, атомарный commit. Синки одной посылки
// сериализованы per-package локом, разные посылки идут параллельно.
type Engine struct {
	repo      Repository
	provider  provider.Client
	locations LocationResolver

	locks   *keylock.KeyLock
	planner *Planner

	fetchTimeout time.Duration

	// Всё ниже — best-effort постобработка, не влияет на результат sync.
	publisher    Publisher
	topic        string
	summaryCache cache.BytesCache
	summaryTTL   time.Duration
}

func NewEngine(repo Repository, pc provider.Client, locations LocationResolver) *Engine {
	return &Engine{
		repo:         repo,
		provider:     pc,
		locations:    locations,
		locks:        keylock.New(),
		planner:      DefaultPlanner(),
		fetchTimeout: 60 * time.Second,
	}
}

func (e *Engine) WithPlanner(p *Planner) *Engine {
	if p != nil {
		e.planner = p
	}
	return e
}

func (e *Engine) WithFetchTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.fetchTimeout = d
	}
	return e
}

func (e *Engine) WithPublisher(p Publisher, topic string) *Engine {
	if p != nil && topic != "" {
		e.publisher = p
		e.topic = topic
	}
	return e
}

func (e *Engine) WithSummaryCache(c cache.BytesCache, ttl time.Duration) *Engine {
	if c != nil && ttl > 0 {
		e.summaryCache = c
		e.summaryTTL = ttl
	}
	return e
}

func SummaryCacheKey(packageID uint64) string {
	return fmt.Sprintf("package:%d:summary", packageID)
}

// SyncPackage обновляет одну посылку. Ноль новых событий — это успех.
// Ошибки геокодинга поглощаются: обогащение локаций best-effort
// относительно трекинга статусов.
func (e *Engine) SyncPackage(ctx context.Context, packageID uint64) (*models.Package, error) {
	unlock := e.locks.Lock(fmt.Sprintf("pkg:%d", packageID))
	defer unlock()

	pkg, err := e.repo.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}

	existing, err := e.repo.ListTrackingEvents(ctx, packageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	res, err := e.provider.Track(fctx, pkg.TrackingNumber, deref(pkg.Courier), deref(pkg.ProviderTrackerID))
	cancel()
	if err != nil {
		return nil, e.recordFetchFailure(ctx, pkg, now, err)
	}

	merged := Merge(existing, res.Events)
	if merged.Dropped > 0 {
		slog.Warn("dropped malformed events", "package_id", packageID, "count", merged.Dropped)
	}

	// Геокодим локации новых событий через общий кэш. Failed-запись — это
	// "координат нет", а не ошибка; usage считаем по одному на событие.
	for _, ev := range merged.NewEvents {
		if ev.Location == "" {
			continue
		}
		entry, rerr := e.locations.Resolve(ctx, ev.Location)
		if rerr != nil {
			slog.Warn("resolve location", "package_id", packageID, "location", ev.Location, "error", rerr.Error())
			continue
		}
		if entry == nil {
			continue
		}
		ev.LocationKey = &entry.NormalizedKey
		e.locations.IncrementUsage(ctx, entry.NormalizedKey)
	}

	summary := e.buildSummary(pkg, res, merged)

	nextStatus := deref(summary.LastStatus)
	upd := pgstore.SyncUpdate{
		PackageID:   packageID,
		CheckedAt:   now,
		NextCheckAt: now.Add(e.planner.NextCheckDelay(nextStatus)),
		Summary:     summary,
		NewEvents:   merged.NewEvents,
	}
	if err := e.repo.ApplySyncUpdate(ctx, upd); err != nil {
		return nil, err
	}

	updated, err := e.repo.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}

	e.notify(ctx, updated, len(merged.NewEvents), now)
	return updated, nil
}

func (e *Engine) recordFetchFailure(ctx context.Context, pkg *models.Package, now time.Time, fetchErr error) error {
	msg := fetchErr.Error()
	upd := pgstore.SyncUpdate{
		PackageID:   pkg.ID,
		CheckedAt:   now,
		NextCheckAt: now.Add(e.planner.BackoffDelay(pkg.CheckFailCount + 1)),
		Error:       &msg,
	}
	if err := e.repo.ApplySyncUpdate(ctx, upd); err != nil {
		slog.Error("record fetch failure", "package_id", pkg.ID, "error", err.Error())
	}

	switch {
	case errors.Is(fetchErr, provider.ErrNotFound):
		return errors.Wrap(ErrInvalidTrackingNumber, pkg.TrackingNumber)
	case errors.Is(fetchErr, provider.ErrRateLimited),
		errors.Is(fetchErr, provider.ErrUnavailable),
		errors.Is(fetchErr, context.DeadlineExceeded):
		return errors.Wrap(ErrProviderUnavailable, msg)
	default:
		return errors.Wrap(ErrProviderUnavailable, msg)
	}
}

// buildSummary пересчитывает производные поля пакета. Источник истины —
// хронологически последнее событие объединённого timeline; delivered_at
// монотонный (однажды выставленный, не сбрасывается поздними
// out-of-order событиями).
func (e *Engine) buildSummary(pkg *models.Package, res provider.Result, merged MergeResult) pgstore.SummaryUpdate {
	sum := pgstore.SummaryUpdate{
		LastStatus:         pkg.LastStatus,
		LastLocationKey:    pkg.LastLocationKey,
		LastUpdated:        pkg.LastUpdated,
		DeliveredAt:        pkg.DeliveredAt,
		OriginCountry:      pkg.OriginCountry,
		DestinationCountry: pkg.DestinationCountry,
		EstimatedDelivery:  pkg.EstimatedDelivery,
		DetectedCourier:    pkg.DetectedCourier,
		ProviderTrackerID:  pkg.ProviderTrackerID,
	}

	if merged.Latest != nil {
		status := merged.Latest.Status
		ts := merged.Latest.EventTime
		sum.LastStatus = &status
		sum.LastLocationKey = merged.Latest.LocationKey
		sum.LastUpdated = &ts
	}
	if sum.DeliveredAt == nil {
		sum.DeliveredAt = merged.DeliveredAt
	}

	if res.OriginCountry != "" {
		sum.OriginCountry = &res.OriginCountry
	}
	if res.DestinationCountry != "" {
		sum.DestinationCountry = &res.DestinationCountry
	}
	if res.EstimatedDelivery != nil {
		sum.EstimatedDelivery = res.EstimatedDelivery
	}
	if res.DetectedCourier != "" {
		sum.DetectedCourier = &res.DetectedCourier
	}
	if res.TrackerID != "" {
		sum.ProviderTrackerID = &res.TrackerID
	}
	return sum
}

func (e *Engine) notify(ctx context.Context, pkg *models.Package, newEvents int, checkedAt time.Time) {
	if pkg == nil {
		return
	}

	if e.summaryCache != nil {
		if b, err := json.Marshal(pkg); err == nil {
			if err := e.summaryCache.Set(ctx, SummaryCacheKey(pkg.ID), b, e.summaryTTL); err != nil {
				slog.Warn("refresh summary cache", "package_id", pkg.ID, "error", err.Error())
			}
		}
	}

	if e.publisher != nil {
		msg := messages.PackageUpdated{
			PackageID: pkg.ID,
			CheckedAt: checkedAt,
			Status:    deref(pkg.LastStatus),
			NewEvents: newEvents,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return
		}
		key := []byte(fmt.Sprintf("%d", pkg.ID))
		if err := e.publisher.Publish(ctx, e.topic, key, b); err != nil {
			slog.Warn("publish package update", "package_id", pkg.ID, "error", err.Error())
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
