package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/reconcile"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

// TransactionLister serves the order audit endpoint.
type TransactionLister interface {
	ListTransactionsByOrder(orderID string) ([]*models.PaymentTransaction, error)
}

type Handler struct {
	Service      *reconcile.Service
	Transactions TransactionLister
	Logger       *logger.Logger
}

func NewHandler(service *reconcile.Service, transactions TransactionLister, log *logger.Logger) *Handler {
	return &Handler{Service: service, Transactions: transactions, Logger: log}
}

// PaymentCallback receives provider push notifications. The provider
// retries on non-2xx, so only unrecoverable payloads get a 4xx back.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, r, start, http.StatusBadRequest, "Failed to read callback body", err)
		return
	}

	result, err := h.Service.HandleCallback(r.Context(), payload)
	if err != nil {
		h.respondReconcileError(w, r, start, err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Callback processed", result))
}

// PaymentStatus polls the provider for a deposit's current status and
// reconciles the answer. Used by the frontend when no callback arrived
// within the expected window.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	depositID := r.URL.Query().Get("depositId")
	if depositID == "" {
		h.respondError(w, r, start, http.StatusBadRequest, "Missing depositId query parameter", nil)
		return
	}

	result, err := h.Service.PollDepositStatus(r.Context(), depositID)
	if err != nil {
		h.respondReconcileError(w, r, start, err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Deposit status reconciled", result))
}

// OrderTransactions lists every payment transaction recorded against an
// order, newest first. Support tooling uses it to audit a multi-item
// payment without touching the provider.
func (h *Handler) OrderTransactions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	orderID := chi.URLParam(r, "orderId")
	transactions, err := h.Transactions.ListTransactionsByOrder(orderID)
	if err != nil {
		h.respondError(w, r, start, http.StatusInternalServerError, "Failed to list order transactions", err)
		return
	}

	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Order transactions", map[string]interface{}{
		"orderId":      orderID,
		"transactions": transactions,
	}))
}

func (h *Handler) respondReconcileError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	switch {
	case errors.Is(err, models.ErrMissingDepositID):
		h.respondError(w, r, start, http.StatusBadRequest, "Callback payload missing depositId", err)
	case errors.Is(err, reconcile.ErrBookingNotFound):
		h.respondError(w, r, start, http.StatusBadRequest, "No booking found for deposit", err)
	case errors.Is(err, reconcile.ErrTerminalConflict):
		h.respondError(w, r, start, http.StatusConflict, "Conflicting terminal status", err)
	case errors.Is(err, reconcile.ErrDepositBusy):
		h.respondError(w, r, start, http.StatusServiceUnavailable, "Deposit is being processed, retry shortly", err)
	case errors.Is(err, gateway.ErrProviderUnavailable):
		h.respondError(w, r, start, http.StatusBadGateway, "Payment provider unavailable", err)
	default:
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			h.respondError(w, r, start, http.StatusBadRequest, "Malformed callback payload", err)
			return
		}
		h.respondError(w, r, start, http.StatusInternalServerError, "Failed to process payment status", err)
	}
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
