package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licgate/internal/audit"
	apierrors "licgate/internal/errors"
	"licgate/internal/license"
	"licgate/internal/services"
	"licgate/internal/session"
	"licgate/internal/store"
)

// AdminHandler serves the administrative API: license management and
// audit/session reporting. The router mounting these routes wraps them in
// the shared-secret middleware; the handler assumes an authenticated caller.
type AdminHandler struct {
	service services.AdminService
	logger  *slog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(service services.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns the admin routes.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/licenses", h.ListLicenses)
	r.Post("/licenses", h.UpsertLicense)
	r.Delete("/licenses/{deviceID}", h.DeleteLicense)
	r.Get("/audit", h.ListAudit)
	r.Get("/sessions", h.ListSessions)
	return r
}

// UpsertLicenseRequest is the admin license upsert payload.
type UpsertLicenseRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=256"`
	Level    string `json:"level" validate:"required,oneof=lite premium"`
	Expiry   string `json:"expiry" validate:"required"`
	Status   string `json:"status" validate:"required,oneof=active inactive"`

	parsedExpiry time.Time
}

// Bind implements render.Binder.
func (req *UpsertLicenseRequest) Bind(r *http.Request) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	expiry, err := license.ParseExpiry(req.Expiry)
	if err != nil {
		return err
	}
	req.parsedExpiry = expiry
	return nil
}

// LicenseListResponse wraps the license listing.
type LicenseListResponse struct {
	Licenses []licenseRecord `json:"licenses"`
	Count    int             `json:"count"`
}

// licenseRecord is the admin wire shape of a license, with the expiry
// rendered in the canonical date-only format.
type licenseRecord struct {
	DeviceID  string    `json:"device_id"`
	Username  string    `json:"username"`
	Level     string    `json:"level"`
	Expiry    string    `json:"expiry"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLicenseRecord(lic license.License) licenseRecord {
	return licenseRecord{
		DeviceID:  lic.DeviceID,
		Username:  lic.Username,
		Level:     string(lic.Level),
		Expiry:    lic.ExpiryString(),
		Status:    string(lic.Status),
		UpdatedAt: lic.UpdatedAt,
	}
}

// ListLicenses handles GET /api/admin/licenses.
func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	licenses, err := h.service.ListLicenses(ctx)
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("license list", err)))
		return
	}

	resp := LicenseListResponse{Licenses: make([]licenseRecord, 0, len(licenses)), Count: len(licenses)}
	for _, lic := range licenses {
		resp.Licenses = append(resp.Licenses, toLicenseRecord(lic))
	}
	render.JSON(w, r, resp)
}

// UpsertLicense handles POST /api/admin/licenses.
func (h *AdminHandler) UpsertLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &UpsertLicenseRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(bindError(err)))
		return
	}

	lic := &license.License{
		DeviceID: req.DeviceID,
		Username: req.Username,
		Level:    license.Level(req.Level),
		Expiry:   req.parsedExpiry,
		Status:   license.AdminStatus(req.Status),
	}
	if err := h.service.UpsertLicense(ctx, lic); err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("license upsert", err)))
		return
	}

	render.JSON(w, r, toLicenseRecord(*lic))
}

// DeleteLicense handles DELETE /api/admin/licenses/{deviceID}.
func (h *AdminHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "deviceID")

	err := h.service.DeleteLicense(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("license")))
		return
	}
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("license delete", err)))
		return
	}

	render.JSON(w, r, map[string]string{"status": "deleted", "device_id": deviceID})
}

// ListAudit handles GET /api/admin/audit with device_id, from, to and limit
// query filters.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, to, limit, apiErr := rangeParams(r)
	if apiErr != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apiErr))
		return
	}

	records, err := h.service.ListAudit(ctx, audit.Filter{
		DeviceID: strings.TrimSpace(r.URL.Query().Get("device_id")),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("audit list", err)))
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	render.JSON(w, r, map[string]any{"records": records, "count": len(records)})
}

// ListSessions handles GET /api/admin/sessions with the same filters.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, to, limit, apiErr := rangeParams(r)
	if apiErr != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apiErr))
		return
	}

	sessions, err := h.service.ListSessions(ctx, session.Filter{
		DeviceID: strings.TrimSpace(r.URL.Query().Get("device_id")),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("session list", err)))
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	render.JSON(w, r, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// rangeParams parses the shared from/to/limit query filters. Dates accept
// RFC 3339 timestamps or date-only values.
func rangeParams(r *http.Request) (from, to time.Time, limit int, apiErr *apierrors.APIError) {
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return from, to, 0, apierrors.ErrValidation("from", "expected RFC 3339 timestamp or YYYY-MM-DD")
		}
		from = t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return from, to, 0, apierrors.ErrValidation("to", "expected RFC 3339 timestamp or YYYY-MM-DD")
		}
		to = t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return from, to, 0, apierrors.ErrValidation("limit", "expected a positive integer")
		}
		limit = n
	}
	return from, to, limit, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(license.DateLayout, s, time.UTC)
}
