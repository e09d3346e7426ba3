package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	conflictservice "slotcore/internal/conflicts"
	converterservice "slotcore/internal/converter/service"
	engineservice "slotcore/internal/engine/service"
	holdservice "slotcore/internal/holds/service"
	lockservice "slotcore/internal/locks/service"
	apperrors "slotcore/pkg/errors"
	httputil "slotcore/pkg/http"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// EngineHandler is the HTTP surface of the booking engine: holds, versions,
// conversions, conflict history and the availability read-model.
type EngineHandler struct {
	holds        holdservice.HoldManager
	converter    converterservice.ConverterService
	detector     conflictservice.Detector
	availability engineservice.AvailabilityService
	locks        lockservice.LockService
	log          *logger.Logger
}

func NewEngineHandler(
	holds holdservice.HoldManager,
	converter converterservice.ConverterService,
	detector conflictservice.Detector,
	availability engineservice.AvailabilityService,
	locks lockservice.LockService,
	log *logger.Logger,
) *EngineHandler {
	return &EngineHandler{
		holds:        holds,
		converter:    converter,
		detector:     detector,
		availability: availability,
		locks:        locks,
		log:          log,
	}
}

func (h *EngineHandler) CreateHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CreateHold", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	hold, err := h.holds.CreateHold(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, hold); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateHold", "operation", "WriteCreated", "error", err)
	}
}

func (h *EngineHandler) GetHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	hold, err := h.holds.GetHold(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, hold); err != nil {
		h.log.Error("failed to write success response", "handler", "GetHold", "operation", "WriteSuccess", "error", err)
	}
}

func (h *EngineHandler) RenewHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	token, err := httputil.ExtractFencingToken(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "RenewHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var ttl time.Duration
	if s := r.URL.Query().Get("ttl_seconds"); s != "" {
		seconds, err := strconv.Atoi(s)
		if err != nil || seconds < 1 {
			if writeErr := httputil.WriteError(w, apperrors.InvalidInput("invalid ttl_seconds parameter: "+s)); writeErr != nil {
				h.log.Error("failed to write error response", "handler", "RenewHold", "operation", "WriteError", "error", writeErr)
			}
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	hold, err := h.holds.RenewHold(r.Context(), id, token, ttl)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "RenewHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, hold); err != nil {
		h.log.Error("failed to write success response", "handler", "RenewHold", "operation", "WriteSuccess", "error", err)
	}
}

func (h *EngineHandler) ReleaseHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	token, err := httputil.ExtractOptionalFencingToken(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ReleaseHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := h.holds.ReleaseHold(r.Context(), id, token); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ReleaseHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *EngineHandler) ConvertHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	token, err := httputil.ExtractOptionalFencingToken(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ConvertHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req model.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "ConvertHold", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	booking, err := h.converter.ConvertHold(r.Context(), id, token, &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ConvertHold", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "ConvertHold", "operation", "WriteCreated", "error", err)
	}
}

func (h *EngineHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.converter.GetBooking(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetBooking", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *EngineHandler) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.converter.CancelBooking(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CancelBooking", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "CancelBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *EngineHandler) GetConflicts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resourceKey := r.URL.Query().Get("resource_key")
	if resourceKey == "" {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("resource_key parameter is required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetConflicts", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetConflicts", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	records, total, err := h.detector.History(r.Context(), resourceKey, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetConflicts", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, records, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetConflicts", "operation", "WritePaginated", "error", err)
	}
}

func (h *EngineHandler) GetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	snapshot, err := h.availability.Snapshot(r.Context(),
		query.Get("service_id"),
		query.Get("location_id"),
		query.Get("date"),
	)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAvailability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, snapshot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *EngineHandler) InspectLock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key := r.URL.Query().Get("key")
	if key == "" {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("key parameter is required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "InspectLock", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	lock, err := h.locks.Inspect(r.Context(), key)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "InspectLock", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	status := lockStatus{SlotLock: lock, Live: lock.Live(time.Now().UTC())}
	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "InspectLock", "operation", "WriteSuccess", "error", err)
	}
}

// lockStatus decorates a lock document with whether it currently bars
// acquisition, so operators reading the row do not have to compare
// expires_at against the clock themselves.
type lockStatus struct {
	*model.SlotLock
	Live bool `json:"live"`
}

func (h *EngineHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/holds", h.CreateHold)
	router.GET("/api/v1/holds/id/:id", h.GetHold)
	router.POST("/api/v1/holds/id/:id/renew", h.RenewHold)
	router.DELETE("/api/v1/holds/id/:id", h.ReleaseHold)
	router.POST("/api/v1/holds/id/:id/convert", h.ConvertHold)
	router.GET("/api/v1/bookings/id/:id", h.GetBooking)
	router.DELETE("/api/v1/bookings/id/:id", h.CancelBooking)
	router.GET("/api/v1/conflicts", h.GetConflicts)
	router.GET("/api/v1/availability", h.GetAvailability)
	router.GET("/api/v1/locks", h.InspectLock)
}
