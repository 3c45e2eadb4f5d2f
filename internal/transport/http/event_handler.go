package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apierrors "licgate/internal/errors"
	"licgate/internal/infrastructure"
	"licgate/internal/license"
	"licgate/internal/services"
)

var validate = validator.New()

// EventHandler serves session start/end and generic event recording.
type EventHandler struct {
	service services.EventService
	logger  *slog.Logger
}

// NewEventHandler creates an event handler.
func NewEventHandler(service services.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "event")),
	}
}

// Routes returns the session and event routes.
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions/start", h.StartSession)
	r.Post("/sessions/end", h.EndSession)
	r.Post("/events", h.RecordEvent)
	return r
}

// StartSessionRequest is the session start payload.
type StartSessionRequest struct {
	DeviceID  string `json:"device_id" validate:"required,max=128"`
	Level     string `json:"level" validate:"required,oneof=lite premium"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// Bind implements render.Binder.
func (req *StartSessionRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// EndSessionRequest is the session end payload. DurationSec, when present
// and non-negative, is trusted over the server-measured elapsed time.
type EndSessionRequest struct {
	DeviceID    string `json:"device_id" validate:"required,max=128"`
	SessionID   string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	DurationSec *int64 `json:"duration_sec,omitempty"`
}

// Bind implements render.Binder.
func (req *EndSessionRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// RecordEventRequest is the generic event payload.
type RecordEventRequest struct {
	DeviceID string         `json:"device_id" validate:"required,max=128"`
	Event    string         `json:"event" validate:"required,max=64"`
	Result   string         `json:"result,omitempty" validate:"omitempty,max=64"`
	Data     map[string]any `json:"data,omitempty"`
}

// Bind implements render.Binder.
func (req *RecordEventRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// SessionResponse is the wire shape for start/end outcomes.
type SessionResponse struct {
	Status      string `json:"status"`
	Session     string `json:"session"`
	SessionID   string `json:"session_id,omitempty"`
	DurationSec *int64 `json:"duration_sec,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// StartSession handles POST /api/sessions/start.
func (h *EventHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := otel.Tracer(infrastructure.TracerName).Start(ctx, "event_handler.start_session")
	defer span.End()

	req := &StartSessionRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(bindError(err)))
		return
	}
	span.SetAttributes(attribute.String("device_id", req.DeviceID))

	out, err := h.service.StartSession(ctx, req.DeviceID, license.Level(req.Level), req.SessionID, clientMeta(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "session start failed",
			slog.String("device_id", req.DeviceID),
			slog.String("error", err.Error()),
		)
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("session start", err)))
		return
	}

	resp := SessionResponse{Status: "ok"}
	if out.Started {
		resp.Session = "started"
		resp.SessionID = out.SessionID
	} else {
		resp.Session = "not_started"
		resp.Reason = string(out.Reason)
	}
	render.JSON(w, r, resp)
}

// EndSession handles POST /api/sessions/end.
func (h *EventHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := otel.Tracer(infrastructure.TracerName).Start(ctx, "event_handler.end_session")
	defer span.End()

	req := &EndSessionRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(bindError(err)))
		return
	}
	span.SetAttributes(attribute.String("device_id", req.DeviceID))

	out, err := h.service.EndSession(ctx, req.DeviceID, req.SessionID, req.DurationSec, clientMeta(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "session end failed",
			slog.String("device_id", req.DeviceID),
			slog.String("error", err.Error()),
		)
		_ = render.Render(w, r, apierrors.NewErrorResponse(apierrors.StoreError("session end", err)))
		return
	}

	resp := SessionResponse{Status: "ok"}
	switch {
	case out.Ended:
		resp.Session = "ended"
		resp.SessionID = out.SessionID
		resp.DurationSec = &out.DurationSec
	case out.NotFound:
		resp.Session = "not_found"
	default:
		resp.Session = "not_ended"
		resp.Reason = string(out.Reason)
	}
	render.JSON(w, r, resp)
}

// RecordEvent handles POST /api/events. The audit write is fire-and-forget,
// so the acknowledgement carries no failure mode beyond validation.
func (h *EventHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &RecordEventRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, apierrors.NewErrorResponse(bindError(err)))
		return
	}

	h.service.RecordEvent(ctx, req.DeviceID, req.Event, req.Result, req.Data, clientMeta(r))
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// bindError unwraps validator errors into the first field failure for a
// friendlier boundary message.
func bindError(err error) *apierrors.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apierrors.ErrValidation(verrs[0].Field(), verrs[0].Tag())
	}
	return apierrors.InvalidRequestWithError(err)
}
