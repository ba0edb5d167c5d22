package geocoder

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNoMatch: the geocoder answered but found nothing for the query.
	// Cached as a sticky failure.
	ErrNoMatch = errors.New("no geocoding match")
	// ErrUnavailable covers transport errors and timeouts. Treated the
	// same as ErrNoMatch by the cache: location enrichment is best-effort.
	ErrUnavailable = errors.New("geocoder unavailable")
)

type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	CountryCode string
}

type Client interface {
	Geocode(ctx context.Context, address string) (Result, error)
}
