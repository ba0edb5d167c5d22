package models

import "time"

// Canonical package statuses. The provider's milestone vocabulary is mapped
// onto these; anything unrecognized becomes UNKNOWN.
const (
	PackageStatusPending        = "PENDING"
	PackageStatusInTransit      = "IN_TRANSIT"
	PackageStatusOutForDelivery = "OUT_FOR_DELIVERY"
	PackageStatusDelivered      = "DELIVERED"
	PackageStatusException      = "EXCEPTION"
	PackageStatusUnknown        = "UNKNOWN"
)

type Package struct {
	ID             uint64
	UserID         string
	TrackingNumber string
	Courier        *string
	Note           *string

	// Cached provider state.
	ProviderTrackerID *string
	LastStatus        *string
	LastLocationKey   *string
	LastUpdated       *time.Time
	DeliveredAt       *time.Time

	OriginCountry      *string
	DestinationCountry *string
	EstimatedDelivery  *time.Time
	DetectedCourier    *string

	Archived bool

	// Refresh scheduling.
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TrackingEvent struct {
	ID        uint64
	PackageID uint64
	Status    string
	// Location is the free-text location as the provider sent it,
	// LocationKey its normalized form (FK into the locations table).
	Location         string
	LocationKey      *string
	EventTime        time.Time
	Description      string
	CourierEventCode string
	CourierCode      string
	CreatedAt        time.Time
}

// NaturalKey identifies a tracking event within one package.
// Two fetches of the same upstream event always produce the same key.
type NaturalKey struct {
	EventTime        time.Time
	Status           string
	CourierEventCode string
}

func (e *TrackingEvent) NaturalKey() NaturalKey {
	return NaturalKey{
		EventTime:        e.EventTime.UTC(),
		Status:           e.Status,
		CourierEventCode: e.CourierEventCode,
	}
}

// LocationEntry is a row of the geocoding cache, shared by all packages.
type LocationEntry struct {
	NormalizedKey string
	RawString     string
	Alias         *string
	Latitude      *float64
	Longitude     *float64
	DisplayName   *string
	CountryCode   *string
	GeocodedAt    *time.Time
	Failed        bool
	UsageCount    int64
}

// HasCoordinates reports whether the entry carries a usable geocode result.
func (l *LocationEntry) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type PackageCreateInput struct {
	UserID         string
	TrackingNumber string
	Courier        *string
	Note           *string
}
