package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/TrackIt/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const packageColumns = `
  id, user_id, tracking_number, courier, note,
  provider_tracker_id, last_status, last_location_key, last_updated, delivered_at,
  origin_country, destination_country, estimated_delivery, detected_courier,
  archived, next_check_at, check_fail_count, last_error,
  created_at, updated_at`

func scanPackage(row pgx.Row) (*models.Package, error) {
	var p models.Package
	if err := row.Scan(
		&p.ID, &p.UserID, &p.TrackingNumber, &p.Courier, &p.Note,
		&p.ProviderTrackerID, &p.LastStatus, &p.LastLocationKey, &p.LastUpdated, &p.DeliveredAt,
		&p.OriginCountry, &p.DestinationCountry, &p.EstimatedDelivery, &p.DetectedCourier,
		&p.Archived, &p.NextCheckAt, &p.CheckFailCount, &p.LastError,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) CreateOrGetPackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO packages (user_id, tracking_number, courier, note, next_check_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (user_id, tracking_number)
DO UPDATE SET updated_at = packages.updated_at
RETURNING id
`, it.UserID, it.TrackingNumber, it.Courier, it.Note, now, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert package")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetPackagesByIDs(ctx, ids)
}

func (s *Storage) GetPackageByID(ctx context.Context, id uint64) (*models.Package, error) {
	p, err := scanPackage(s.db.QueryRow(ctx, `SELECT`+packageColumns+` FROM packages WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select package")
	}
	return p, nil
}

func (s *Storage) GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error) {
	if len(ids) == 0 {
		return []*models.Package{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+packageColumns+` FROM packages WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select packages")
	}
	defer rows.Close()

	out := make([]*models.Package, 0, len(ids))
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) RefreshPackage(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE packages SET next_check_at = now(), updated_at = now() WHERE id = $1`, id)
	return errors.Wrap(err, "refresh package")
}

// ClaimDuePackages выбирает пачку посылок, готовых к обновлению, и "бронирует"
// их через lease, чтобы параллельный воркер не взял те же самые.
// Delivered и archived посылки из выборки исключаются.
func (s *Storage) ClaimDuePackages(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Package, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+packageColumns+`
FROM packages
WHERE next_check_at <= $1
  AND archived = FALSE
  AND (last_status IS NULL OR last_status <> $2)
ORDER BY next_check_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.PackageStatusDelivered, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due packages")
	}
	defer rows.Close()

	var picked []*models.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due package")
		}
		picked = append(picked, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, p := range picked {
		_, err := tx.Exec(ctx, `UPDATE packages SET next_check_at = $2, updated_at = now() WHERE id = $1`, p.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease package")
		}
		p.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
