package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Merry-360-x/merry-moments-sub004/internal/availability"
	"github.com/Merry-360-x/merry-moments-sub004/internal/booking"
	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/refund"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

type Handler struct {
	Bookings     *booking.Service
	Availability *availability.Service
	Refunds      *refund.Service
	Logger       *logger.Logger
}

func NewHandler(bookings *booking.Service, avail *availability.Service, refunds *refund.Service, log *logger.Logger) *Handler {
	return &Handler{
		Bookings:     bookings,
		Availability: avail,
		Refunds:      refunds,
		Logger:       log,
	}
}

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var submission booking.CheckoutSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.respondError(w, r, start, http.StatusBadRequest, "Invalid checkout payload", err)
		return
	}

	resp, err := h.Bookings.Checkout(r.Context(), submission)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrEmptyCheckout),
			errors.Is(err, availability.ErrInvalidDateRange):
			h.respondError(w, r, start, http.StatusBadRequest, "Invalid checkout", err)
		case errors.Is(err, booking.ErrItemUnavailable):
			h.respondError(w, r, start, http.StatusConflict, "Item unavailable", err)
		case errors.Is(err, bookingdb.ErrNotFound):
			h.respondError(w, r, start, http.StatusNotFound, "Listing not found", err)
		default:
			h.respondError(w, r, start, http.StatusInternalServerError, "Checkout failed", err)
		}
		return
	}

	h.respond(w, r, start, http.StatusCreated, utils.SuccessResponse("Checkout created", resp))
}

// CheckAvailability handles POST /api/availability/check.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var payload struct {
		Items []models.AvailabilityCheck `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, r, start, http.StatusBadRequest, "Invalid availability payload", err)
		return
	}
	if len(payload.Items) == 0 {
		h.respondError(w, r, start, http.StatusBadRequest, "No items to check", nil)
		return
	}

	results, err := h.Availability.CheckAvailability(r.Context(), payload.Items)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidDateRange) {
			h.respondError(w, r, start, http.StatusBadRequest, "Invalid date range", err)
			return
		}
		h.respondError(w, r, start, http.StatusInternalServerError, "Availability check failed", err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Availability checked", map[string]interface{}{
		"results": results,
	}))
}

// GetBooking handles GET /api/bookings/{id}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	b, err := h.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, bookingdb.ErrNotFound) {
			h.respondError(w, r, start, http.StatusNotFound, "Booking not found", err)
			return
		}
		h.respondError(w, r, start, http.StatusInternalServerError, "Failed to load booking", err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Booking", b))
}

// GetOrder handles GET /api/orders/{orderId}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	orderID := chi.URLParam(r, "orderId")
	summary, err := h.Bookings.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, bookingdb.ErrNotFound) {
			h.respondError(w, r, start, http.StatusNotFound, "Order not found", err)
			return
		}
		h.respondError(w, r, start, http.StatusInternalServerError, "Failed to load order", err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Order", summary))
}

// AutoConfirm handles POST /api/bookings/{id}/auto-confirm.
func (h *Handler) AutoConfirm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	b, err := h.Availability.AutoConfirmBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, bookingdb.ErrNotFound) {
			h.respondError(w, r, start, http.StatusNotFound, "Booking not found", err)
			return
		}
		h.respondError(w, r, start, http.StatusConflict, "Cannot auto-confirm booking", err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Booking confirmed", b))
}

// CancelBooking handles POST /api/bookings/{id}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	b, quote, err := h.Bookings.CancelBooking(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, bookingdb.ErrNotFound):
			h.respondError(w, r, start, http.StatusNotFound, "Booking not found", err)
		case errors.Is(err, booking.ErrNotCancellable):
			h.respondError(w, r, start, http.StatusConflict, "Booking cannot be cancelled", err)
		default:
			h.respondError(w, r, start, http.StatusInternalServerError, "Cancellation failed", err)
		}
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Booking cancelled", map[string]interface{}{
		"booking": b,
		"refund":  quote,
	}))
}

// RefundInfo handles GET /api/bookings/{id}/refund. An orderId query
// parameter widens the quote to every sibling booking of the order.
func (h *Handler) RefundInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	orderID := r.URL.Query().Get("orderId")
	quote, err := h.Refunds.GetRefundInfo(r.Context(), id, orderID)
	if err != nil {
		if errors.Is(err, bookingdb.ErrNotFound) {
			h.respondError(w, r, start, http.StatusNotFound, "Booking not found", err)
			return
		}
		h.respondError(w, r, start, http.StatusInternalServerError, "Failed to compute refund", err)
		return
	}

	if quote == nil {
		h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("No refund applicable", map[string]interface{}{
			"eligible": false,
		}))
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Refund quote", quote))
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
