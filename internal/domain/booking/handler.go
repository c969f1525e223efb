package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixpoint/fixpoint-api/internal/domain/catalog"
	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
	"github.com/fixpoint/fixpoint-api/internal/domain/inventory"
	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/domain/selection"
	"github.com/fixpoint/fixpoint-api/internal/middleware"
	"github.com/fixpoint/fixpoint-api/internal/pkg/response"
	"github.com/fixpoint/fixpoint-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// reportedPosition adapts the device fix the client sent into a position
// source. A missing fix behaves like a device error, which resolves to the
// anchor location.
type reportedPosition struct {
	coord location.Coordinate
	ok    bool
}

func (p reportedPosition) CurrentPosition(ctx context.Context) (location.Coordinate, error) {
	if !p.ok {
		return location.Coordinate{}, location.ErrDeviceUnavailable
	}
	return p.coord, nil
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sess, err := h.service.Open(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("failed to open booking session")
		response.InternalError(w)
		return
	}
	response.Created(w, sessionView(sess))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Get(r.Context(), sessionID, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetService(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SetServiceRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetService(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.ServiceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SearchLocation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SearchLocationRequest
	if !decode(w, r, &req) {
		return
	}
	result, sess, err := h.service.SearchLocation(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.Query)
	if err != nil {
		h.respondError(w, err)
		return
	}

	payload := map[string]interface{}{
		"degraded":   result.Degraded,
		"candidates": result.Candidates,
	}
	if sess != nil {
		payload["session"] = sessionView(sess)
	}
	response.OK(w, payload)
}

func (h *Handler) PickCandidate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req PickCandidateRequest
	if !decode(w, r, &req) {
		return
	}
	candidate := geocode.Candidate{
		Coordinate:  geocode.Coordinate{Lat: req.Lat, Lng: req.Lng},
		DisplayName: req.DisplayName,
	}
	sess, err := h.service.PickCandidate(r.Context(), sessionID, middleware.GetUserID(r.Context()), candidate)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetCoordinate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req CoordinateLocationRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetCoordinate(r.Context(), sessionID, middleware.GetUserID(r.Context()), location.Coordinate{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetCity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req CityLocationRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetCity(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.City)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) UseDevicePosition(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req DeviceLocationRequest
	if !decode(w, r, &req) {
		return
	}
	src := reportedPosition{}
	if req.Lat != nil && req.Lng != nil {
		src = reportedPosition{coord: location.Coordinate{Lat: *req.Lat, Lng: *req.Lng}, ok: true}
	}
	sess, err := h.service.UseDevicePosition(r.Context(), sessionID, middleware.GetUserID(r.Context()), src)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) ClearLocation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.ClearLocation(r.Context(), sessionID, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) ToggleMaterial(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req ToggleMaterialRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.ToggleMaterial(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.ItemID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetMaterialQuantity(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.ItemID, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) RemoveMaterial(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		response.BadRequest(w, "invalid item id")
		return
	}
	sess, err := h.service.RemoveMaterial(r.Context(), sessionID, middleware.GetUserID(r.Context()), itemID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SetPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetPayment(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.PaymentMethod)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SetScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetSchedule(r.Context(), sessionID, middleware.GetUserID(r.Context()), Schedule{Date: req.Date, Time: req.Time})
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) SetDescription(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req SetDescriptionRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.service.SetDescription(r.Context(), sessionID, middleware.GetUserID(r.Context()), req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, sessionView(sess))
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	draft, reasons, err := h.service.Preview(r.Context(), sessionID, middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.OK(w, PreviewResponse{Draft: draft, Reasons: reasons, Ready: len(reasons) == 0})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	booking, err := h.service.Submit(r.Context(), sessionID, middleware.GetUserID(r.Context()))
	if err != nil {
		var validation *ValidationFailedError
		if errors.As(err, &validation) {
			response.ErrorWithReasons(w, http.StatusUnprocessableEntity, "NOT_SUBMITTABLE", "booking is not ready to submit", reasonMessages(validation.Reasons))
			return
		}
		var conflict *StockConflictError
		if errors.As(err, &conflict) {
			details := make(map[string]string, len(conflict.Conflicts))
			for _, c := range conflict.Conflicts {
				details[c.Name] = c.Reason
			}
			response.ErrorWithDetails(w, http.StatusConflict, "STOCK_CONFLICT", "some materials could not be reserved", details)
			return
		}
		h.respondError(w, err)
		return
	}
	response.Created(w, booking)
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Abandon(r.Context(), sessionID, middleware.GetUserID(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(w, "booking session not found or expired")
	case errors.Is(err, ErrSessionClosed):
		response.Gone(w, "booking session is no longer active")
	case errors.Is(err, catalog.ErrNotFound):
		response.NotFound(w, "service not found")
	case errors.Is(err, inventory.ErrNotFound):
		response.NotFound(w, "material not found")
	case errors.Is(err, inventory.ErrAuthRequired):
		response.Unauthorized(w, "sign in to view materials")
	case errors.Is(err, inventory.ErrFetchFailed):
		response.ServiceUnavailable(w, "could not load current stock, please retry")
	case errors.Is(err, selection.ErrOutOfStock):
		response.Conflict(w, "material is out of stock")
	case errors.Is(err, location.ErrUnknownCity):
		response.BadRequest(w, "unknown city shortcut")
	case errors.Is(err, location.ErrNoMatches):
		response.NotFound(w, "no locations matched the query")
	case errors.Is(err, location.ErrSearchFailed):
		response.ServiceUnavailable(w, "location search is unavailable, please retry")
	default:
		log.Error().Err(err).Msg("booking request failed")
		response.InternalError(w)
	}
}

func decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return false
	}
	return true
}

func sessionView(sess *Session) SessionResponse {
	return SessionResponse{Session: sess, MaterialsCost: sess.Ledger.TotalCost()}
}

func reasonMessages(reasons []Reason) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, r.Message)
	}
	return out
}
