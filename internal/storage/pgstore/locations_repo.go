package pgstore

import (
	"context"

	"github.com/BearBump/TrackIt/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const locationColumns = `
  normalized_key, raw_string, alias, latitude, longitude,
  display_name, country_code, geocoded_at, geocoding_failed, usage_count`

func scanLocation(row pgx.Row) (*models.LocationEntry, error) {
	var l models.LocationEntry
	if err := row.Scan(
		&l.NormalizedKey, &l.RawString, &l.Alias, &l.Latitude, &l.Longitude,
		&l.DisplayName, &l.CountryCode, &l.GeocodedAt, &l.Failed, &l.UsageCount,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLocation возвращает (nil, nil), если ключ ещё не встречался.
func (s *Storage) GetLocation(ctx context.Context, key string) (*models.LocationEntry, error) {
	l, err := scanLocation(s.db.QueryRow(ctx,
		`SELECT`+locationColumns+` FROM locations WHERE normalized_key = $1`, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select location")
	}
	return l, nil
}

func (s *Storage) GetLocationsByKeys(ctx context.Context, keys []string) (map[string]*models.LocationEntry, error) {
	out := make(map[string]*models.LocationEntry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT`+locationColumns+` FROM locations WHERE normalized_key = ANY($1)`, keys)
	if err != nil {
		return nil, errors.Wrap(err, "select locations")
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		out[l.NormalizedKey] = l
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertLocation перезаписывает результат геокодинга; usage_count при апдейте
// не трогаем, им владеет IncrementUsage.
func (s *Storage) UpsertLocation(ctx context.Context, l *models.LocationEntry) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO locations (
  normalized_key, raw_string, alias, latitude, longitude,
  display_name, country_code, geocoded_at, geocoding_failed, usage_count
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (normalized_key) DO UPDATE SET
  raw_string = EXCLUDED.raw_string,
  alias = EXCLUDED.alias,
  latitude = EXCLUDED.latitude,
  longitude = EXCLUDED.longitude,
  display_name = EXCLUDED.display_name,
  country_code = EXCLUDED.country_code,
  geocoded_at = EXCLUDED.geocoded_at,
  geocoding_failed = EXCLUDED.geocoding_failed
`, l.NormalizedKey, l.RawString, l.Alias, l.Latitude, l.Longitude,
		l.DisplayName, l.CountryCode, l.GeocodedAt, l.Failed, l.UsageCount)
	return errors.Wrap(err, "upsert location")
}

func (s *Storage) IncrementUsage(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE locations SET usage_count = usage_count + 1 WHERE normalized_key = $1`, key)
	return errors.Wrap(err, "increment usage")
}

func (s *Storage) ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error) {
	q := `SELECT` + locationColumns + ` FROM locations`
	if failedOnly {
		q += ` WHERE geocoding_failed = TRUE`
	}
	q += ` ORDER BY usage_count DESC, normalized_key ASC`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "select locations")
	}
	defer rows.Close()

	var out []*models.LocationEntry
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
