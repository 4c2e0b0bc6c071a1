package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
	"github.com/Merry-360-x/merry-moments-sub004/internal/reconcile"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

// In-memory fakes wired into a real reconcile.Service. The handler
// tests exercise the full HTTP-to-transition path.

type fakeBookings struct {
	bookings map[string]*models.Booking
	byRef    map[string]*models.Booking
}

func (f *fakeBookings) GetBookingByID(_ context.Context, id string) (*models.Booking, error) {
	if b, ok := f.bookings[id]; ok {
		return b, nil
	}
	return nil, bookingdb.ErrNotFound
}

func (f *fakeBookings) GetBookingsByOrderID(_ context.Context, orderID string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.OrderID == orderID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookings) GetBookingByPaymentReference(_ context.Context, ref string) (*models.Booking, error) {
	if b, ok := f.byRef[ref]; ok {
		return b, nil
	}
	return nil, bookingdb.ErrNotFound
}

func (f *fakeBookings) GetCheckoutRequestByPaymentReference(_ context.Context, ref string) (*models.CheckoutRequest, error) {
	return nil, bookingdb.ErrNotFound
}

func (f *fakeBookings) UpdateBookingPayment(_ context.Context, id string, status models.BookingStatus, payment models.PaymentState) error {
	if b, ok := f.bookings[id]; ok {
		b.Status = status
		b.PaymentStatus = payment
	}
	return nil
}

func (f *fakeBookings) UpdateOrderBookingsPayment(_ context.Context, orderID string, status models.BookingStatus, payment models.PaymentState) error {
	for _, b := range f.bookings {
		if b.OrderID == orderID {
			b.Status = status
			b.PaymentStatus = payment
		}
	}
	return nil
}

type fakeTxStore struct {
	transactions map[string]*models.PaymentTransaction
}

func (f *fakeTxStore) SaveTransaction(tx *models.PaymentTransaction) error {
	f.transactions[tx.TransactionID] = tx
	return nil
}

func (f *fakeTxStore) GetTransaction(id string) (*models.PaymentTransaction, error) {
	if tx, ok := f.transactions[id]; ok {
		return tx, nil
	}
	return nil, storage.ErrTransactionNotFound
}

func (f *fakeTxStore) MarkTerminal(tx *models.PaymentTransaction) (bool, error) {
	if existing, ok := f.transactions[tx.TransactionID]; ok && existing.Status.IsTerminal() {
		return false, nil
	}
	f.transactions[tx.TransactionID] = tx
	return true, nil
}

func (f *fakeTxStore) ListTransactionsByOrder(orderID string) ([]*models.PaymentTransaction, error) {
	var out []*models.PaymentTransaction
	for _, tx := range f.transactions {
		if tx.OrderID == orderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakeLock struct{}

func (fakeLock) Acquire(context.Context, string) (bool, error) { return true, nil }
func (fakeLock) Release(context.Context, string) error         { return nil }

type fakePoller struct {
	response *gateway.DepositResponse
	err      error
}

func (f *fakePoller) GetDepositStatus(context.Context, string) (*gateway.DepositResponse, error) {
	return f.response, f.err
}

func setupHandler(t *testing.T, poller reconcile.StatusPoller) (*Handler, *fakeBookings, *fakeTxStore) {
	t.Helper()
	log := logger.NewLogger()
	t.Cleanup(log.Close)

	booking := &models.Booking{
		ID:            "bkg-1",
		TotalPrice:    25000,
		Currency:      "RWF",
		Status:        models.BookingPendingConfirmation,
		PaymentStatus: models.PaymentAwaitingCallback,
	}
	bookings := &fakeBookings{
		bookings: map[string]*models.Booking{"bkg-1": booking},
		byRef:    map[string]*models.Booking{"dep-1": booking},
	}
	store := &fakeTxStore{transactions: map[string]*models.PaymentTransaction{}}

	service := reconcile.NewService(bookings, store, fakeLock{}, nil, poller, log)
	return NewHandler(service, store, log), bookings, store
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPaymentCallbackConfirmsBooking(t *testing.T) {
	handler, bookings, _ := setupHandler(t, nil)

	payload := `{"depositId":"dep-1","status":"COMPLETED","amount":"25000","currency":"RWF"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()

	handler.PaymentCallback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, models.BookingConfirmed, bookings.bookings["bkg-1"].Status)
	assert.Equal(t, models.PaymentPaid, bookings.bookings["bkg-1"].PaymentStatus)
}

func TestPaymentCallbackIsIdempotent(t *testing.T) {
	handler, _, _ := setupHandler(t, nil)

	payload := `{"depositId":"dep-1","status":"COMPLETED"}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(payload))
		rec := httptest.NewRecorder()
		handler.PaymentCallback(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "delivery %d should succeed", i+1)
	}
}

func TestPaymentCallbackMissingDepositID(t *testing.T) {
	handler, _, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(`{"status":"COMPLETED"}`))
	rec := httptest.NewRecorder()

	handler.PaymentCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
}

func TestPaymentCallbackMalformedJSON(t *testing.T) {
	handler, _, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(`{not-json`))
	rec := httptest.NewRecorder()

	handler.PaymentCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentCallbackUnknownDeposit(t *testing.T) {
	handler, _, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(`{"depositId":"dep-ghost","status":"COMPLETED"}`))
	rec := httptest.NewRecorder()

	handler.PaymentCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentCallbackConflictingTerminal(t *testing.T) {
	handler, _, store := setupHandler(t, nil)

	store.transactions["dep-1"] = &models.PaymentTransaction{
		TransactionID: "dep-1",
		Status:        models.ProviderFailed,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewBufferString(`{"depositId":"dep-1","status":"COMPLETED"}`))
	rec := httptest.NewRecorder()

	handler.PaymentCallback(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentStatusPollsProvider(t *testing.T) {
	handler, bookings, _ := setupHandler(t, &fakePoller{
		response: &gateway.DepositResponse{
			DepositID: "dep-1",
			Status:    models.ProviderCompleted,
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/status?depositId=dep-1", nil)
	rec := httptest.NewRecorder()

	handler.PaymentStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.BookingConfirmed, bookings.bookings["bkg-1"].Status)
}

func TestPaymentStatusRequiresDepositID(t *testing.T) {
	handler, _, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/status", nil)
	rec := httptest.NewRecorder()

	handler.PaymentStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderTransactionsListsRecordedPayments(t *testing.T) {
	handler, _, store := setupHandler(t, nil)
	store.transactions["dep-1"] = &models.PaymentTransaction{
		TransactionID: "dep-1", OrderID: "ord-1", Status: models.ProviderCompleted,
	}
	store.transactions["dep-2"] = &models.PaymentTransaction{
		TransactionID: "dep-2", OrderID: "ord-other", Status: models.ProviderFailed,
	}

	router := chi.NewRouter()
	router.Get("/api/payments/order/{orderId}", handler.OrderTransactions)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/order/ord-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var body struct {
		OrderID      string                       `json:"orderId"`
		Transactions []*models.PaymentTransaction `json:"transactions"`
	}
	assert.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "ord-1", body.OrderID)
	assert.Len(t, body.Transactions, 1)
	assert.Equal(t, "dep-1", body.Transactions[0].TransactionID)
}

func TestPaymentStatusProviderDown(t *testing.T) {
	handler, _, _ := setupHandler(t, &fakePoller{err: gateway.ErrProviderUnavailable})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/status?depositId=dep-1", nil)
	rec := httptest.NewRecorder()

	handler.PaymentStatus(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
