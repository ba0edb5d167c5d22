package sync

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/BearBump/TrackIt/internal/models"
)

// MapStatus переводит milestone-словарь провайдера в канонический статус.
// Всё нераспознанное становится UNKNOWN.
func MapStatus(milestone string) string {
	s := strings.ToLower(milestone)
	switch {
	case strings.Contains(s, "delivered"):
		return models.PackageStatusDelivered
	case strings.Contains(s, "out for delivery"), strings.Contains(s, "out_for_delivery"):
		return models.PackageStatusOutForDelivery
	case strings.Contains(s, "in transit"), strings.Contains(s, "in_transit"):
		return models.PackageStatusInTransit
	case strings.Contains(s, "exception"), strings.Contains(s, "failed"), strings.Contains(s, "returned"):
		return models.PackageStatusException
	case strings.Contains(s, "pending"), strings.Contains(s, "info received"), strings.Contains(s, "info_received"):
		return models.PackageStatusPending
	default:
		return models.PackageStatusUnknown
	}
}

func parseEventTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	// Некоторые курьеры шлют время без зоны; считаем его UTC.
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

type MergeResult struct {
	// NewEvents: incoming события, которых ещё нет в timeline, в порядке fetch.
	NewEvents []*models.TrackingEvent
	// Latest — хронологически последнее событие объединённого timeline
	// (nil, если событий нет вообще). Источник истины для summary.
	Latest *models.TrackingEvent
	// DeliveredAt — время последнего Delivered-события объединённого
	// timeline, nil если доставки не было.
	DeliveredAt *time.Time
	// Dropped — количество событий, выброшенных из-за кривого timestamp.
	Dropped int
}

// Merge сверяет свежие события провайдера с сохранённым timeline пакета.
// Дедупликация по натуральному ключу (event_time, status, courier_event_code);
// порядок fetch не обязан совпадать с хронологией, сортировка стабильная.
func Merge(existing []*models.TrackingEvent, incoming []provider.RawEvent) MergeResult {
	seen := make(map[models.NaturalKey]struct{}, len(existing))
	for _, e := range existing {
		seen[e.NaturalKey()] = struct{}{}
	}

	var res MergeResult
	for _, raw := range incoming {
		ts, ok := parseEventTime(raw.Timestamp)
		if !ok {
			slog.Warn("dropping event with malformed timestamp", "timestamp", raw.Timestamp, "status", raw.StatusMilestone)
			res.Dropped++
			continue
		}
		ev := &models.TrackingEvent{
			Status:           MapStatus(raw.StatusMilestone),
			Location:         strings.TrimSpace(raw.Location),
			EventTime:        ts,
			Description:      raw.Description,
			CourierEventCode: raw.CourierEventCode,
			CourierCode:      raw.CourierCode,
		}
		k := ev.NaturalKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		res.NewEvents = append(res.NewEvents, ev)
	}

	union := make([]*models.TrackingEvent, 0, len(existing)+len(res.NewEvents))
	union = append(union, existing...)
	union = append(union, res.NewEvents...)
	sort.SliceStable(union, func(i, j int) bool {
		return union[i].EventTime.Before(union[j].EventTime)
	})

	if len(union) > 0 {
		res.Latest = union[len(union)-1]
	}
	for _, e := range union {
		if e.Status != models.PackageStatusDelivered {
			continue
		}
		t := e.EventTime
		if res.DeliveredAt == nil || t.After(*res.DeliveredAt) {
			res.DeliveredAt = &t
		}
	}
	return res
}
