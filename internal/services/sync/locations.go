package sync

import (
	"context"

	"github.com/BearBump/TrackIt/internal/models"
)

type EventLocation struct {
	Event *models.TrackingEvent
	// Location nil, когда у события нет локации или геокодинг не удался —
	// для отображения это одно и то же: координат нет.
	Location *models.LocationEntry
}

type PackageLocations struct {
	Events      []EventLocation
	Origin      *models.LocationEntry
	Destination *models.LocationEntry
}

// ResolveLocationsForPackage отдаёт timeline с координатами для карты.
// Только чтение кэша; единственные возможные внешние вызовы — первый
// геокодинг стран отправления/назначения.
func (e *Engine) ResolveLocationsForPackage(ctx context.Context, packageID uint64) (*PackageLocations, error) {
	pkg, err := e.repo.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}

	events, err := e.repo.ListTrackingEvents(ctx, packageID)
	if err != nil {
		return nil, err
	}

	keySet := map[string]struct{}{}
	for _, ev := range events {
		if ev.LocationKey != nil {
			keySet[*ev.LocationKey] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}

	byKey, err := e.repo.GetLocationsByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := &PackageLocations{Events: make([]EventLocation, 0, len(events))}
	for _, ev := range events {
		el := EventLocation{Event: ev}
		if ev.LocationKey != nil {
			if entry, ok := byKey[*ev.LocationKey]; ok && entry.HasCoordinates() {
				el.Location = entry
			}
		}
		out.Events = append(out.Events, el)
	}

	out.Origin = e.resolveCountry(ctx, pkg.OriginCountry)
	out.Destination = e.resolveCountry(ctx, pkg.DestinationCountry)
	return out, nil
}

func (e *Engine) resolveCountry(ctx context.Context, code *string) *models.LocationEntry {
	if code == nil || *code == "" {
		return nil
	}
	entry, err := e.locations.Resolve(ctx, *code)
	if err != nil || entry == nil || !entry.HasCoordinates() {
		return nil
	}
	return entry
}
