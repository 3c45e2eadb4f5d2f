package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licgate/internal/errors"
	"licgate/internal/infrastructure"
	"licgate/internal/services"
)

const maxDeviceIDLength = 128

// LicenseHandler serves license check requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the license check routes.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/check", h.Check)
	return r
}

// Check handles GET /api/license/check?device_id=...
//
// Evaluator outcomes are successful responses carrying a status; only a
// store fault during the lookup produces a server error.
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(infrastructure.TracerName)
	ctx, span := tracer.Start(ctx, "license_handler.check",
		trace.WithAttributes(
			attribute.String("http.route", "/api/license/check"),
		),
	)
	defer span.End()

	deviceID, apiErr := deviceIDParam(r)
	if apiErr != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(apiErr))
		return
	}
	span.SetAttributes(attribute.String("device_id", deviceID))

	ev, err := h.service.Check(ctx, deviceID, clientMeta(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "license check failed",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("license lookup", err)))
		return
	}

	span.SetAttributes(attribute.String("license.status", string(ev.Status)))
	render.JSON(w, r, ev)
}

// deviceIDParam extracts and validates the device_id query parameter.
func deviceIDParam(r *http.Request) (string, *apierrors.APIError) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		return "", apierrors.ErrValidation("device_id", "must not be empty")
	}
	if len(deviceID) > maxDeviceIDLength {
		return "", apierrors.ErrValidation("device_id", "too long")
	}
	return deviceID, nil
}

// clientMeta extracts audit metadata from the request. RealIP middleware has
// already resolved forwarded addresses into RemoteAddr.
func clientMeta(r *http.Request) services.ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return services.ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}
