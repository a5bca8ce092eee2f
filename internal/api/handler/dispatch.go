package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/api/middleware"
	"github.com/lifeguard/lifeguard/internal/api/models"
	"github.com/lifeguard/lifeguard/internal/api/response"
	"github.com/lifeguard/lifeguard/internal/dispatch"
	"github.com/lifeguard/lifeguard/internal/facility"
	"github.com/lifeguard/lifeguard/pkg/geo"
)

// maxBodyBytes bounds the dispatch request body.
const maxBodyBytes = 64 << 10

// Dispatcher runs an incident dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Input) (*dispatch.Report, error)
}

// DispatchHandler handles emergency dispatch endpoints.
type DispatchHandler struct {
	dispatcher Dispatcher
	lookup     facility.Lookup
	logger     zerolog.Logger
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatcher Dispatcher, lookup facility.Lookup, logger zerolog.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		lookup:     lookup,
		logger:     logger,
	}
}

// Dispatch handles POST /api/emergency/dispatch - notify responders of an incident.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req models.DispatchRequest
	if fields, msg := decodeDispatch(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); msg != "" {
		writeDispatchError(w, r, http.StatusBadRequest, msg, fields)
		return
	}

	report, err := h.dispatcher.Dispatch(r.Context(), req.ToInput())
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			writeDispatchError(w, r, http.StatusBadRequest, verr.Error(), verr.Fields)
			return
		}
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("dispatch failed")
		writeDispatchError(w, r, http.StatusInternalServerError, "Dispatch failed due to an internal error.", nil)
		return
	}

	// Aggregate failure is still a completed dispatch.
	response.JSON(w, r, http.StatusOK, models.NewDispatchResponse(report))
}

// Facilities handles GET /api/emergency/facilities - ranked responders near a point.
func (h *DispatchHandler) Facilities(w http.ResponseWriter, r *http.Request) {
	origin, fields := parseOrigin(r)
	if len(fields) > 0 {
		response.BadRequest(w, r, "valid latitude and longitude query parameters are required", fields)
		return
	}

	facilities, err := h.lookup.Facilities(r.Context(), origin)
	if err != nil {
		h.logger.Error().Err(err).Msg("facility lookup failed")
		response.InternalError(w, r, "facility lookup failed")
		return
	}

	resp := models.NewFacilitiesResponse(
		origin.Latitude,
		origin.Longitude,
		facility.Rank(origin, facilities),
		facility.NearestByCategory(origin, facilities),
	)
	response.JSON(w, r, http.StatusOK, resp)
}

// decodeDispatch decodes the request body. A non-empty message means the body
// was rejected.
func decodeDispatch(body io.Reader, req *models.DispatchRequest) ([]dispatch.FieldError, string) {
	err := json.NewDecoder(body).Decode(req)
	if err == nil {
		return nil, ""
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return []dispatch.FieldError{{
			Field:   typeErr.Field,
			Message: "must be a " + typeErr.Type.String(),
		}}, "invalid incident report: " + typeErr.Field + " has the wrong type"
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, "request body too large"
	}
	if errors.Is(err, io.EOF) {
		return nil, "request body is empty"
	}
	return nil, "invalid JSON body"
}

func writeDispatchError(w http.ResponseWriter, r *http.Request, status int, msg string, fields []dispatch.FieldError) {
	response.JSON(w, r, status, models.DispatchError{
		Status:  "error",
		Message: msg,
		Errors:  fields,
	})
}

func parseOrigin(r *http.Request) (geo.Coordinate, []models.FieldError) {
	var fields []models.FieldError
	parse := func(name string) float64 {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			fields = append(fields, models.FieldError{Field: name, Message: "is required", Code: "REQUIRED"})
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields = append(fields, models.FieldError{Field: name, Message: "must be a number", Code: "INVALID_NUMBER"})
			return 0
		}
		return v
	}

	origin := geo.Coordinate{Latitude: parse("latitude"), Longitude: parse("longitude")}
	if len(fields) == 0 {
		if err := origin.Validate(); err != nil {
			fields = append(fields, models.FieldError{Field: "location", Message: err.Error(), Code: "OUT_OF_RANGE"})
		}
	}
	return origin, fields
}
