package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payout"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

type Handler struct {
	Service *payout.Service
	Logger  *logger.Logger
}

func NewHandler(service *payout.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// InitiatePayout handles POST /api/payouts.
func (h *Handler) InitiatePayout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, start, http.StatusBadRequest, "Invalid payout payload", err)
		return
	}

	result, err := h.Service.InitiatePayout(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, payout.ErrBelowMinimum), errors.Is(err, payout.ErrInvalidPayout):
			h.respondError(w, r, start, http.StatusBadRequest, "Payout rejected", err)
		case errors.Is(err, gateway.ErrProviderUnavailable):
			h.respondError(w, r, start, http.StatusBadGateway, "Payment provider unavailable", err)
		default:
			h.respondError(w, r, start, http.StatusInternalServerError, "Failed to initiate payout", err)
		}
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Payout submitted", result))
}

// PayoutStatus handles GET /api/payouts/{id}/status.
func (h *Handler) PayoutStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	result, err := h.Service.GetPayoutStatus(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrPayoutNotFound):
			h.respondError(w, r, start, http.StatusNotFound, "Payout not found", err)
		case errors.Is(err, gateway.ErrProviderUnavailable):
			h.respondError(w, r, start, http.StatusBadGateway, "Payment provider unavailable", err)
		default:
			h.respondError(w, r, start, http.StatusInternalServerError, "Failed to get payout status", err)
		}
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Payout status", result))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, start time.Time, status int, body utils.APIResponse) {
	body.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
	h.Logger.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), time.Since(start).String())
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, start time.Time, status int, message string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if status >= 500 {
		h.Logger.Error("API", message+": "+detail)
	} else {
		h.Logger.Warn("API", message+": "+detail)
	}
	h.respond(w, r, start, status, utils.ErrorResponse(message, detail))
}
