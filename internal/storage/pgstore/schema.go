package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS locations (
  normalized_key TEXT PRIMARY KEY,
  raw_string TEXT NOT NULL,
  alias TEXT NULL,
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  display_name TEXT NULL,
  country_code TEXT NULL,
  geocoded_at TIMESTAMPTZ NULL,
  geocoding_failed BOOLEAN NOT NULL DEFAULT FALSE,
  usage_count BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_failed ON locations(geocoding_failed)`,
		`
CREATE TABLE IF NOT EXISTS packages (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  courier TEXT NULL,
  note TEXT NULL,
  provider_tracker_id TEXT NULL,
  last_status TEXT NULL,
  last_location_key TEXT NULL REFERENCES locations(normalized_key),
  last_updated TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL,
  origin_country TEXT NULL,
  destination_country TEXT NULL,
  estimated_delivery TIMESTAMPTZ NULL,
  detected_courier TEXT NULL,
  archived BOOLEAN NOT NULL DEFAULT FALSE,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (user_id, tracking_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_packages_next_check_at ON packages(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id BIGSERIAL PRIMARY KEY,
  package_id BIGINT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  location_key TEXT NULL REFERENCES locations(normalized_key),
  event_time TIMESTAMPTZ NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  courier_event_code TEXT NOT NULL DEFAULT '',
  courier_code TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_package_id_event_time ON tracking_events(package_id, event_time)`,
		// Natural key of an event; re-syncs rely on ON CONFLICT DO NOTHING
		// against this index.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_events_natural_key ON tracking_events(package_id, event_time, status, courier_event_code)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
