package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound: no courier recognizes the tracking number. Permanent,
	// surfaced to the user, never retried.
	ErrNotFound = errors.New("tracking number not found")
	// ErrRateLimited / ErrUnavailable are transient; the caller retries later.
	ErrRateLimited = errors.New("provider rate limit exceeded")
	ErrUnavailable = errors.New("provider unavailable")
)

// RawEvent is one checkpoint as the multi-courier provider reports it.
// Timestamp stays a string here: parsing (and dropping malformed values)
// is the merger's job, a bad timestamp must not fail the whole fetch.
type RawEvent struct {
	StatusMilestone  string
	Location         string
	Timestamp        string
	Description      string
	CourierEventCode string
	CourierCode      string
}

type Result struct {
	Events             []RawEvent
	DetectedCourier    string
	OriginCountry      string
	DestinationCountry string
	EstimatedDelivery  *time.Time
	TrackerID          string
}

// Client is the courier-tracking capability. trackerID is the provider-side
// tracker cached from an earlier call; "" means none. Implementations map
// upstream failures onto the sentinel errors above.
type Client interface {
	Track(ctx context.Context, trackingNumber, courierHint, trackerID string) (Result, error)
}
