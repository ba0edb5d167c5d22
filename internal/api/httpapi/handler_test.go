package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/TrackIt/internal/models"
	"github.com/BearBump/TrackIt/internal/services/locations"
	"github.com/BearBump/TrackIt/internal/services/packages"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakePackages struct {
	createIn []models.PackageCreateInput
	pkg      *models.Package
	events   []*models.TrackingEvent

	refreshed uint64
}

func (f *fakePackages) CreatePackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error) {
	f.createIn = items
	if len(items) == 0 {
		return nil, errEmpty
	}
	out := make([]*models.Package, 0, len(items))
	for i, it := range items {
		out = append(out, &models.Package{ID: uint64(i + 1), UserID: it.UserID, TrackingNumber: it.TrackingNumber, NextCheckAt: time.Now().UTC()})
	}
	return out, nil
}

var errEmpty = errInvalid("items is empty")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

func (f *fakePackages) GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error) {
	if f.pkg == nil {
		return nil, nil
	}
	return []*models.Package{f.pkg}, nil
}

func (f *fakePackages) GetPackageByID(ctx context.Context, id uint64) (*models.Package, error) {
	if f.pkg == nil || f.pkg.ID != id {
		return nil, packages.ErrPackageNotFound
	}
	return f.pkg, nil
}

func (f *fakePackages) ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	return f.events, nil
}

func (f *fakePackages) RefreshPackage(ctx context.Context, packageID uint64) error {
	f.refreshed = packageID
	return nil
}

type fakeTimeline struct {
	pl *syncsvc.PackageLocations
}

func (f *fakeTimeline) ResolveLocationsForPackage(ctx context.Context, packageID uint64) (*syncsvc.PackageLocations, error) {
	if f.pl == nil {
		return nil, syncsvc.ErrPackageNotFound
	}
	return f.pl, nil
}

type fakeAdmin struct {
	entries    []*models.LocationEntry
	failedOnly bool

	aliasKey, aliasVal string
	retryKey           string
}

func (f *fakeAdmin) ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error) {
	f.failedOnly = failedOnly
	return f.entries, nil
}

func (f *fakeAdmin) SetLocationAlias(ctx context.Context, key, alias string) (*models.LocationEntry, error) {
	if len(f.entries) == 0 {
		return nil, locations.ErrLocationNotFound
	}
	f.aliasKey, f.aliasVal = key, alias
	return f.entries[0], nil
}

func (f *fakeAdmin) RetryLocation(ctx context.Context, key string) (*models.LocationEntry, error) {
	if len(f.entries) == 0 {
		return nil, locations.ErrLocationNotFound
	}
	f.retryKey = key
	return f.entries[0], nil
}

func newTestServer(p *fakePackages, tl *fakeTimeline, a *fakeAdmin) *httptest.Server {
	r := chi.NewRouter()
	NewHandler(p, tl, a).Routes(r)
	return httptest.NewServer(r)
}

func TestHandler_CreatePackages(t *testing.T) {
	p := &fakePackages{}
	srv := newTestServer(p, &fakeTimeline{}, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/packages", "application/json",
		strings.NewReader(`{"items":[{"userId":"u1","trackingNumber":"AB1"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Packages []packageView `json:"packages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Packages, 1)
	require.Equal(t, "AB1", body.Packages[0].TrackingNumber)
	require.Len(t, p.createIn, 1)
}

func TestHandler_CreatePackages_badJSON(t *testing.T) {
	srv := newTestServer(&fakePackages{}, &fakeTimeline{}, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/packages", "application/json", strings.NewReader(`{"items":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_GetPackage(t *testing.T) {
	status := models.PackageStatusInTransit
	p := &fakePackages{pkg: &models.Package{ID: 7, UserID: "u", TrackingNumber: "N", LastStatus: &status, NextCheckAt: time.Now().UTC()}}
	srv := newTestServer(p, &fakeTimeline{}, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/packages/7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v packageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	require.Equal(t, uint64(7), v.ID)
	require.Equal(t, models.PackageStatusInTransit, *v.Status)

	resp2, err := http.Get(srv.URL + "/packages/8")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/packages/zzz")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestHandler_RefreshPackage(t *testing.T) {
	p := &fakePackages{}
	srv := newTestServer(p, &fakeTimeline{}, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/packages/5/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, uint64(5), p.refreshed)
}

func TestHandler_ListEvents(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	p := &fakePackages{events: []*models.TrackingEvent{
		{ID: 1, PackageID: 5, Status: models.PackageStatusInTransit, Location: "Depot", EventTime: now},
	}}
	srv := newTestServer(p, &fakeTimeline{}, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/packages/5/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []eventView `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	require.Equal(t, "2025-06-01T10:00:00Z", body.Events[0].EventTime)
}

func TestHandler_PackageLocations(t *testing.T) {
	lat, lon := 51.5, -0.12
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	key := "depot"
	tl := &fakeTimeline{pl: &syncsvc.PackageLocations{
		Events: []syncsvc.EventLocation{{
			Event:    &models.TrackingEvent{ID: 1, Status: models.PackageStatusInTransit, Location: "Depot", LocationKey: &key, EventTime: now},
			Location: &models.LocationEntry{NormalizedKey: key, RawString: "Depot", Latitude: &lat, Longitude: &lon},
		}},
	}}
	srv := newTestServer(&fakePackages{}, tl, &fakeAdmin{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/packages/1/locations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v timelineView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	require.Len(t, v.Events, 1)
	require.NotNil(t, v.Events[0].Location)
	require.Equal(t, lat, *v.Events[0].Location.Latitude)

	srv2 := newTestServer(&fakePackages{}, &fakeTimeline{}, &fakeAdmin{})
	defer srv2.Close()
	resp2, err := http.Get(srv2.URL + "/packages/1/locations")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHandler_AdminLocations(t *testing.T) {
	a := &fakeAdmin{entries: []*models.LocationEntry{
		{NormalizedKey: "hub-44", RawString: "HUB-44", Failed: true, UsageCount: 3},
	}}
	srv := newTestServer(&fakePackages{}, &fakeTimeline{}, a)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/locations?failed_only=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, a.failedOnly)

	var body struct {
		Locations []locationView `json:"locations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Locations, 1)
	require.Equal(t, "hub-44", body.Locations[0].Key)
	require.True(t, body.Locations[0].Failed)
}

func TestHandler_SetAlias(t *testing.T) {
	a := &fakeAdmin{entries: []*models.LocationEntry{{NormalizedKey: "hub-44", RawString: "HUB-44"}}}
	srv := newTestServer(&fakePackages{}, &fakeTimeline{}, a)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/admin/locations/hub-44/alias",
		strings.NewReader(`{"alias":"Heathrow Airport, UK"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hub-44", a.aliasKey)
	require.Equal(t, "Heathrow Airport, UK", a.aliasVal)

	// пустой alias — bad request
	req2, _ := http.NewRequest(http.MethodPut, srv.URL+"/admin/locations/hub-44/alias", strings.NewReader(`{"alias":""}`))
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	// неизвестный ключ — 404
	empty := &fakeAdmin{}
	srv3 := newTestServer(&fakePackages{}, &fakeTimeline{}, empty)
	defer srv3.Close()
	req3, _ := http.NewRequest(http.MethodPut, srv3.URL+"/admin/locations/nope/alias", strings.NewReader(`{"alias":"x"}`))
	resp3, err := http.DefaultClient.Do(req3)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestHandler_RetryLocation(t *testing.T) {
	a := &fakeAdmin{entries: []*models.LocationEntry{{NormalizedKey: "hub-44", RawString: "HUB-44"}}}
	srv := newTestServer(&fakePackages{}, &fakeTimeline{}, a)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/locations/hub-44/retry", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hub-44", a.retryKey)
}
