package httpapi

import (
	"github.com/BearBump/TrackIt/internal/models"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
)

type packageView struct {
	ID             uint64  `json:"id"`
	UserID         string  `json:"userId"`
	TrackingNumber string  `json:"trackingNumber"`
	Courier        *string `json:"courier,omitempty"`
	Note           *string `json:"note,omitempty"`

	Status             *string `json:"status,omitempty"`
	LastLocationKey    *string `json:"lastLocationKey,omitempty"`
	LastUpdated        *string `json:"lastUpdated,omitempty"`
	DeliveredAt        *string `json:"deliveredAt,omitempty"`
	OriginCountry      *string `json:"originCountry,omitempty"`
	DestinationCountry *string `json:"destinationCountry,omitempty"`
	EstimatedDelivery  *string `json:"estimatedDelivery,omitempty"`
	DetectedCourier    *string `json:"detectedCourier,omitempty"`

	Archived    bool    `json:"archived"`
	NextCheckAt string  `json:"nextCheckAt"`
	LastError   *string `json:"lastError,omitempty"`
}

func toPackageView(p *models.Package) packageView {
	return packageView{
		ID:                 p.ID,
		UserID:             p.UserID,
		TrackingNumber:     p.TrackingNumber,
		Courier:            p.Courier,
		Note:               p.Note,
		Status:             p.LastStatus,
		LastLocationKey:    p.LastLocationKey,
		LastUpdated:        timeFmt(p.LastUpdated),
		DeliveredAt:        timeFmt(p.DeliveredAt),
		OriginCountry:      p.OriginCountry,
		DestinationCountry: p.DestinationCountry,
		EstimatedDelivery:  timeFmt(p.EstimatedDelivery),
		DetectedCourier:    p.DetectedCourier,
		Archived:           p.Archived,
		NextCheckAt:        *timeFmt(&p.NextCheckAt),
		LastError:          p.LastError,
	}
}

func toPackageViews(ps []*models.Package) []packageView {
	out := make([]packageView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPackageView(p))
	}
	return out
}

type eventView struct {
	ID               uint64  `json:"id"`
	Status           string  `json:"status"`
	Location         string  `json:"location,omitempty"`
	LocationKey      *string `json:"locationKey,omitempty"`
	EventTime        string  `json:"eventTime"`
	Description      string  `json:"description,omitempty"`
	CourierEventCode string  `json:"courierEventCode,omitempty"`
	CourierCode      string  `json:"courierCode,omitempty"`
}

func toEventView(e *models.TrackingEvent) eventView {
	return eventView{
		ID:               e.ID,
		Status:           e.Status,
		Location:         e.Location,
		LocationKey:      e.LocationKey,
		EventTime:        *timeFmt(&e.EventTime),
		Description:      e.Description,
		CourierEventCode: e.CourierEventCode,
		CourierCode:      e.CourierCode,
	}
}

func toEventViews(es []*models.TrackingEvent) []eventView {
	out := make([]eventView, 0, len(es))
	for _, e := range es {
		out = append(out, toEventView(e))
	}
	return out
}

type locationView struct {
	Key         string   `json:"key"`
	Raw         string   `json:"raw"`
	Alias       *string  `json:"alias,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	DisplayName *string  `json:"displayName,omitempty"`
	CountryCode *string  `json:"countryCode,omitempty"`
	GeocodedAt  *string  `json:"geocodedAt,omitempty"`
	Failed      bool     `json:"failed"`
	UsageCount  int64    `json:"usageCount"`
}

func toLocationView(l *models.LocationEntry) locationView {
	return locationView{
		Key:         l.NormalizedKey,
		Raw:         l.RawString,
		Alias:       l.Alias,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		DisplayName: l.DisplayName,
		CountryCode: l.CountryCode,
		GeocodedAt:  timeFmt(l.GeocodedAt),
		Failed:      l.Failed,
		UsageCount:  l.UsageCount,
	}
}

func toLocationViews(ls []*models.LocationEntry) []locationView {
	out := make([]locationView, 0, len(ls))
	for _, l := range ls {
		out = append(out, toLocationView(l))
	}
	return out
}

type timelineEventView struct {
	Event    eventView     `json:"event"`
	Location *locationView `json:"location,omitempty"`
}

type timelineView struct {
	Events      []timelineEventView `json:"events"`
	Origin      *locationView       `json:"origin,omitempty"`
	Destination *locationView       `json:"destination,omitempty"`
}

func toTimelineView(pl *syncsvc.PackageLocations) timelineView {
	out := timelineView{Events: make([]timelineEventView, 0, len(pl.Events))}
	for _, el := range pl.Events {
		tev := timelineEventView{Event: toEventView(el.Event)}
		if el.Location != nil {
			lv := toLocationView(el.Location)
			tev.Location = &lv
		}
		out.Events = append(out.Events, tev)
	}
	if pl.Origin != nil {
		lv := toLocationView(pl.Origin)
		out.Origin = &lv
	}
	if pl.Destination != nil {
		lv := toLocationView(pl.Destination)
		out.Destination = &lv
	}
	return out
}
