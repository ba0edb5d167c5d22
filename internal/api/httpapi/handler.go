package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/TrackIt/internal/models"
	"github.com/BearBump/TrackIt/internal/services/locations"
	"github.com/BearBump/TrackIt/internal/services/packages"
	syncsvc "github.com/BearBump/TrackIt/internal/services/sync"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type PackagesService interface {
	CreatePackages(ctx context.Context, items []models.PackageCreateInput) ([]*models.Package, error)
	GetPackagesByIDs(ctx context.Context, ids []uint64) ([]*models.Package, error)
	GetPackageByID(ctx context.Context, id uint64) (*models.Package, error)
	ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	RefreshPackage(ctx context.Context, packageID uint64) error
}

type TimelineService interface {
	ResolveLocationsForPackage(ctx context.Context, packageID uint64) (*syncsvc.PackageLocations, error)
}

type LocationsAdmin interface {
	ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error)
	SetLocationAlias(ctx context.Context, key, alias string) (*models.LocationEntry, error)
	RetryLocation(ctx context.Context, key string) (*models.LocationEntry, error)
}

// Handler — JSON API поверх chi. Тонкий слой: разбор запроса, вызов
// сервиса, маппинг ошибок на статусы.
type Handler struct {
	packages PackagesService
	timeline TimelineService
	admin    LocationsAdmin
}

func NewHandler(pkgs PackagesService, timeline TimelineService, admin LocationsAdmin) *Handler {
	return &Handler{packages: pkgs, timeline: timeline, admin: admin}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/packages", h.createPackages)
	r.Get("/packages", h.getPackages)
	r.Get("/packages/{id}", h.getPackage)
	r.Post("/packages/{id}/refresh", h.refreshPackage)
	r.Get("/packages/{id}/events", h.listEvents)
	r.Get("/packages/{id}/locations", h.packageLocations)

	r.Get("/admin/locations", h.listLocations)
	r.Put("/admin/locations/{key}/alias", h.setAlias)
	r.Post("/admin/locations/{key}/retry", h.retryLocation)
}

type createPackagesRequest struct {
	Items []createPackageItem `json:"items"`
}

type createPackageItem struct {
	UserID         string  `json:"userId"`
	TrackingNumber string  `json:"trackingNumber"`
	Courier        *string `json:"courier,omitempty"`
	Note           *string `json:"note,omitempty"`
}

func (h *Handler) createPackages(w http.ResponseWriter, r *http.Request) {
	var req createPackagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}

	items := make([]models.PackageCreateInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.PackageCreateInput{
			UserID:         it.UserID,
			TrackingNumber: it.TrackingNumber,
			Courier:        it.Courier,
			Note:           it.Note,
		})
	}

	out, err := h.packages.CreatePackages(r.Context(), items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": toPackageViews(out)})
}

func (h *Handler) getPackages(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["id"]
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Errorf("bad id %q", s))
			return
		}
		ids = append(ids, id)
	}

	out, err := h.packages.GetPackagesByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": toPackageViews(out)})
}

func (h *Handler) getPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.packages.GetPackageByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, packages.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageView(p))
}

func (h *Handler) refreshPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.packages.RefreshPackage(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Воркер подхватит посылку асинхронно, поэтому 202.
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": true})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	evs, err := h.packages.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventViews(evs)})
}

func (h *Handler) packageLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pl, err := h.timeline.ResolveLocationsForPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, syncsvc.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineView(pl))
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	failedOnly := r.URL.Query().Get("failed_only") == "true"
	out, err := h.admin.ListLocations(r.Context(), failedOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": toLocationViews(out)})
}

type setAliasRequest struct {
	Alias string `json:"alias"`
}

func (h *Handler) setAlias(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req setAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}
	if req.Alias == "" {
		writeError(w, http.StatusBadRequest, errors.New("alias is required"))
		return
	}

	entry, err := h.admin.SetLocationAlias(r.Context(), key, req.Alias)
	if err != nil {
		if errors.Is(err, locations.ErrLocationNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationView(entry))
}

func (h *Handler) retryLocation(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, err := h.admin.RetryLocation(r.Context(), key)
	if err != nil {
		if errors.Is(err, locations.ErrLocationNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationView(entry))
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, errors.New("bad package id"))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// timeFmt держит время в ответах в UTC RFC3339.
func timeFmt(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
