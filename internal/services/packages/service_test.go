package packages

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/TrackIt/internal/broker/messages"
	"github.com/BearBump/TrackIt/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	createIn  []models.PackageCreateInput
	createOut []*models.Package
	createErr error

	getIn  []uint64
	getOut []*models.Package
	getErr error

	listIn  uint64
	listOut []*models.TrackingEvent

	refreshID  uint64
	refreshErr error
}

func (f *fakeRepo) CreateOrGetPackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error) {
	f.createIn = items
	return f.createOut, f.createErr
}
func (f *fakeRepo) GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error) {
	f.getIn = ids
	return f.getOut, f.getErr
}
func (f *fakeRepo) ListTrackingEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	f.listIn = packageID
	return f.listOut, nil
}
func (f *fakeRepo) RefreshPackage(ctx context.Context, id uint64) error {
	f.refreshID = id
	return f.refreshErr
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func TestService_CreatePackages_validate(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)

	_, err := s.CreatePackages(context.Background(), nil)
	require.Error(t, err)

	_, err = s.CreatePackages(context.Background(), []models.PackageCreateInput{{UserID: "", TrackingNumber: "X"}})
	require.Error(t, err)

	_, err = s.CreatePackages(context.Background(), []models.PackageCreateInput{{UserID: "u", TrackingNumber: ""}})
	require.Error(t, err)
}

func TestService_CreatePackages_dedup(t *testing.T) {
	r := &fakeRepo{createOut: []*models.Package{{ID: 1}}}
	s := New(r, nil, 0)

	_, err := s.CreatePackages(context.Background(), []models.PackageCreateInput{
		{UserID: "u", TrackingNumber: "A"},
		{UserID: "u", TrackingNumber: "A"},
		{UserID: "u", TrackingNumber: "B"},
	})
	require.NoError(t, err)
	require.Len(t, r.createIn, 2)
}

func TestService_GetPackagesByIDs_cacheHit(t *testing.T) {
	r := &fakeRepo{}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, 10*time.Minute)

	want := &models.Package{ID: 7, UserID: "u", TrackingNumber: "N"}
	b, _ := json.Marshal(want)
	c.m["package:7:summary"] = b

	out, err := s.GetPackagesByIDs(context.Background(), []uint64{7})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(7), out[0].ID)
	require.Nil(t, r.getIn) // БД не трогали
}

func TestService_GetPackagesByIDs_missFillsCacheAndKeepsOrder(t *testing.T) {
	r := &fakeRepo{getOut: []*models.Package{{ID: 1}, {ID: 2}}}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, 10*time.Minute)

	// БД отдаёт не в том порядке, что запрошено.
	out, err := s.GetPackagesByIDs(context.Background(), []uint64{2, 1})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, uint64(2), out[0].ID)
	require.Equal(t, uint64(1), out[1].ID)

	require.Contains(t, c.m, "package:1:summary")
	require.Contains(t, c.m, "package:2:summary")
}

func TestService_GetPackageByID_notFound(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)
	_, err := s.GetPackageByID(context.Background(), 99)
	require.ErrorIs(t, err, ErrPackageNotFound)
}

func TestService_ListEvents(t *testing.T) {
	r := &fakeRepo{listOut: []*models.TrackingEvent{{ID: 1, PackageID: 9}}}
	s := New(r, nil, 0)

	_, err := s.ListEvents(context.Background(), 0)
	require.Error(t, err)

	out, err := s.ListEvents(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(9), r.listIn)
}

func TestService_RefreshPackage_validate(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)

	require.Error(t, s.RefreshPackage(context.Background(), 0))

	require.NoError(t, s.RefreshPackage(context.Background(), 10))
	require.Equal(t, uint64(10), r.refreshID)
}

func TestService_ApplyUpdateNotice_refreshesCache(t *testing.T) {
	inTransit := models.PackageStatusInTransit
	r := &fakeRepo{getOut: []*models.Package{{ID: 3, LastStatus: &inTransit}}}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, 10*time.Minute)

	require.NoError(t, s.ApplyUpdateNotice(context.Background(), messages.PackageUpdated{
		PackageID: 3,
		CheckedAt: time.Now().UTC(),
		Status:    inTransit,
	}))

	b, ok := c.m["package:3:summary"]
	require.True(t, ok)
	var got models.Package
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, uint64(3), got.ID)
}

func TestService_ApplyUpdateNotice_validateAndNoCache(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)

	require.Error(t, s.ApplyUpdateNotice(context.Background(), messages.PackageUpdated{}))

	// Без кэша уведомление — no-op: перечитывать БД незачем.
	require.NoError(t, s.ApplyUpdateNotice(context.Background(), messages.PackageUpdated{PackageID: 5}))
	require.Nil(t, r.getIn)
}
