package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/TrackIt/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// SummaryUpdate carries the derived package fields recomputed on every
// successful sync. Only the sync engine writes these.
type SummaryUpdate struct {
	LastStatus      *string
	LastLocationKey *string
	LastUpdated     *time.Time
	DeliveredAt     *time.Time

	OriginCountry      *string
	DestinationCountry *string
	EstimatedDelivery  *time.Time
	DetectedCourier    *string
	ProviderTrackerID  *string
}

type SyncUpdate struct {
	PackageID uint64

	CheckedAt   time.Time
	NextCheckAt time.Time

	Summary   SummaryUpdate
	NewEvents []*models.TrackingEvent

	// Error set means the provider call failed: only the failure
	// bookkeeping is written, summary and events stay untouched.
	Error *string
}

func (s *Storage) ListTrackingEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, package_id, status, location, location_key,
  event_time, description, courier_event_code, courier_code, created_at
FROM tracking_events
WHERE package_id = $1
ORDER BY event_time ASC, id ASC
`, packageID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.PackageID, &e.Status, &e.Location, &e.LocationKey,
			&e.EventTime, &e.Description, &e.CourierEventCode, &e.CourierCode, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplySyncUpdate коммитит результат одного sync атомарно: либо все новые
// события и summary, либо ничего. Двойная вставка события гасится
// уникальным индексом натурального ключа.
func (s *Storage) ApplySyncUpdate(ctx context.Context, upd SyncUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE packages
SET
  check_fail_count = check_fail_count + 1,
  last_error = $2,
  next_check_at = $3,
  updated_at = now()
WHERE id = $1
`, upd.PackageID, *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update package (error)")
		}
	} else {
		sum := upd.Summary
		_, err := tx.Exec(ctx, `
UPDATE packages
SET
  last_status = $2,
  last_location_key = $3,
  last_updated = $4,
  delivered_at = $5,
  origin_country = $6,
  destination_country = $7,
  estimated_delivery = $8,
  detected_courier = $9,
  provider_tracker_id = $10,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $11,
  updated_at = now()
WHERE id = $1
`, upd.PackageID, sum.LastStatus, sum.LastLocationKey, sum.LastUpdated, sum.DeliveredAt,
			sum.OriginCountry, sum.DestinationCountry, sum.EstimatedDelivery, sum.DetectedCourier,
			sum.ProviderTrackerID, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update package (ok)")
		}

		for _, e := range upd.NewEvents {
			_, err := tx.Exec(ctx, `
INSERT INTO tracking_events (
  package_id, status, location, location_key, event_time,
  description, courier_event_code, courier_code, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
ON CONFLICT (package_id, event_time, status, courier_event_code) DO NOTHING
`, upd.PackageID, e.Status, e.Location, e.LocationKey, e.EventTime.UTC(),
				e.Description, e.CourierEventCode, e.CourierCode)
			if err != nil {
				return errors.Wrap(err, "insert tracking event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
