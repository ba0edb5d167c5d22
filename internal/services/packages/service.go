package packages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/TrackIt/internal/broker/messages"
	"github.com/BearBump/TrackIt/internal/cache"
	"github.com/BearBump/TrackIt/internal/models"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/pkg/errors"
)

var ErrPackageNotFound = errors.New("package not found")

type Repository interface {
	CreateOrGetPackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error)
	GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error)
	ListTrackingEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	RefreshPackage(ctx context.Context, id uint64) error
}

// Service — read-сторона API: создание посылок и отдача их состояния.
// Сам sync живёт в воркере, сюда приходят только уведомления из kafka.
type Service struct {
	repo       Repository
	cache      cache.BytesCache
	summaryTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, summaryTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, summaryTTL: summaryTTL}
}

func (s *Service) CreatePackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error) {
	if len(items) == 0 {
		return nil, errors.New("items is empty")
	}
	if len(items) > 1_000 {
		return nil, errors.New("too many items (max 1000)")
	}

	clean := make([]models.PackageCreateInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.UserID == "" {
			return nil, errors.New("userId is required")
		}
		if it.TrackingNumber == "" {
			return nil, errors.New("trackingNumber is required")
		}
		k := fmt.Sprintf("%s|%s", it.UserID, it.TrackingNumber)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, it)
	}

	return s.repo.CreateOrGetPackages(ctx, clean)
}

// GetPackagesByIDs отдаёт summary посылок, читая сквозь redis-кэш.
// Кэш best-effort: ошибка кэша — это просто промах.
func (s *Service) GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error) {
	if len(ids) == 0 {
		return []*models.Package{}, nil
	}

	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Package, len(ids))

	if s.cache != nil && s.summaryTTL > 0 {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, syncsvc.SummaryCacheKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var p models.Package
			if json.Unmarshal(b, &p) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &p
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetPackagesByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, p := range fromDB {
			got[p.ID] = p
			if s.cache != nil && s.summaryTTL > 0 {
				if b, err := json.Marshal(p); err == nil {
					_ = s.cache.Set(ctx, syncsvc.SummaryCacheKey(p.ID), b, s.summaryTTL)
				}
			}
		}
	}

	// Порядок ответа = порядок ids, несуществующие молча пропускаются.
	out := make([]*models.Package, 0, len(ids))
	for _, id := range ids {
		if p, ok := got[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetPackageByID(ctx context.Context, id uint64) (*models.Package, error) {
	list, err := s.GetPackagesByIDs(ctx, []uint64{id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrPackageNotFound
	}
	return list[0], nil
}

func (s *Service) ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	if packageID == 0 {
		return nil, errors.New("packageId is required")
	}
	return s.repo.ListTrackingEvents(ctx, packageID)
}

// RefreshPackage переносит next_check_at в "сейчас"; воркер подхватит
// посылку в ближайшем цикле. Синхронного sync в API-процессе нет.
func (s *Service) RefreshPackage(ctx context.Context, packageID uint64) error {
	if packageID == 0 {
		return errors.New("packageId is required")
	}
	return s.repo.RefreshPackage(ctx, packageID)
}

// ApplyUpdateNotice — обработчик kafka-уведомления воркера: перечитываем
// посылку из БД и освежаем кэш. Сообщение — только сигнал, не данные.
func (s *Service) ApplyUpdateNotice(ctx context.Context, msg messages.PackageUpdated) error {
	if msg.PackageID == 0 {
		return errors.New("package_id is required")
	}
	if s.cache == nil || s.summaryTTL <= 0 {
		return nil
	}

	ps, err := s.repo.GetPackagesByIDs(ctx, []uint64{msg.PackageID})
	if err != nil {
		return err
	}
	if len(ps) != 1 {
		return nil
	}
	b, err := json.Marshal(ps[0])
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, syncsvc.SummaryCacheKey(msg.PackageID), b, s.summaryTTL)
}
