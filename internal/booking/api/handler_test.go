package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/Merry-360-x/merry-moments-sub004/internal/availability"
	"github.com/Merry-360-x/merry-moments-sub004/internal/booking"
	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/refund"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

type recordingGateway struct {
	requests []gateway.DepositRequest
}

func (g *recordingGateway) InitiateDeposit(_ context.Context, req gateway.DepositRequest) (*gateway.DepositResponse, error) {
	g.requests = append(g.requests, req)
	return &gateway.DepositResponse{DepositID: req.DepositID, Status: models.ProviderAccepted}, nil
}

func setupAPI(t *testing.T) (*chi.Mux, *bookingdb.DB, *recordingGateway) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Booking)(nil),
		(*models.CheckoutRequest)(nil),
		(*models.Listing)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	db := &bookingdb.DB{Bun: bunDB}
	log := logger.NewLogger()
	t.Cleanup(log.Close)

	gw := &recordingGateway{}
	availSvc := availability.NewService(db, log)
	refundSvc := refund.NewService(db, log)
	bookingSvc := booking.NewService(db, availSvc, gw, refundSvc, log)
	handler := NewHandler(bookingSvc, availSvc, refundSvc, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Post("/api/checkout", handler.Checkout)
	router.Post("/api/availability/check", handler.CheckAvailability)
	router.Get("/api/orders/{orderId}", handler.GetOrder)
	router.Get("/api/bookings/{id}", handler.GetBooking)
	router.Post("/api/bookings/{id}/auto-confirm", handler.AutoConfirm)
	router.Post("/api/bookings/{id}/cancel", handler.CancelBooking)
	router.Get("/api/bookings/{id}/refund", handler.RefundInfo)

	return router, db, gw
}

func seedListing(t *testing.T, db *bookingdb.DB, listing models.Listing) {
	t.Helper()
	if _, err := db.Bun.NewInsert().Model(&listing).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed listing: %v", err)
	}
}

func doJSON(t *testing.T, router *chi.Mux, method, path, body string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp utils.APIResponse
	if rec.Body.Len() > 0 {
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCheckoutEndpointCreatesBookingAndDeposit(t *testing.T) {
	router, db, gw := setupAPI(t)
	seedListing(t, db, models.Listing{
		ID: "prop-1", ItemType: "property", HostID: "host-1", Published: true,
		Price: 10000, Currency: "RWF", CancellationPolicyType: models.PolicyFair,
	})

	body := `{
		"guest_id": "guest-1",
		"phone_number": "250780000001",
		"provider": "MTN_MOMO_RWA",
		"payment_method": "mobile_money",
		"items": [
			{"item_type": "property", "item_id": "prop-1", "check_in": "2026-06-01T00:00:00Z", "check_out": "2026-06-04T00:00:00Z"}
		]
	}`
	rec, resp := doJSON(t, router, http.MethodPost, "/api/checkout", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Len(t, gw.requests, 1)
	assert.Equal(t, "10700", gw.requests[0].Amount)
}

func TestCheckoutEndpointRejectsConflictingDates(t *testing.T) {
	router, db, _ := setupAPI(t)
	seedListing(t, db, models.Listing{
		ID: "prop-1", ItemType: "property", HostID: "host-1", Published: true,
		Price: 10000, Currency: "RWF",
	})

	existing := models.Booking{
		ID: "bkg-existing", HostID: "host-1", PropertyID: "prop-1",
		CheckIn:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC),
		Currency: "RWF", Status: models.BookingConfirmed,
		PaymentStatus: models.PaymentPaid, CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBooking(context.Background(), existing))

	body := `{
		"items": [
			{"item_type": "property", "item_id": "prop-1", "check_in": "2026-06-03T00:00:00Z", "check_out": "2026-06-06T00:00:00Z"}
		]
	}`
	rec, _ := doJSON(t, router, http.MethodPost, "/api/checkout", body)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	router, db, _ := setupAPI(t)
	seedListing(t, db, models.Listing{
		ID: "tour-1", ItemType: "tour", HostID: "host-2", Published: true,
		Price: 5000, Currency: "RWF",
	})

	rec, resp := doJSON(t, router, http.MethodPost, "/api/availability/check",
		`{"items":[
			{"item_type":"tour","item_id":"tour-1"},
			{"item_type":"tour","item_id":"tour-missing"}
		]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var body struct {
		Results []models.AvailabilityResult `json:"results"`
	}
	assert.NoError(t, json.Unmarshal(data, &body))
	assert.Len(t, body.Results, 2)
	assert.True(t, body.Results[0].Available)
	assert.True(t, body.Results[0].AutoConfirm)
	assert.False(t, body.Results[1].Available)
	assert.Equal(t, "Listing does not exist", body.Results[1].Reason)
}

func TestAutoConfirmEndpoint(t *testing.T) {
	router, db, _ := setupAPI(t)
	b := models.Booking{
		ID: "bkg-1", HostID: "host-1", PropertyID: "prop-1",
		CheckIn:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC),
		Currency: "RWF", Status: models.BookingPendingConfirmation,
		PaymentStatus: models.PaymentPaid, CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBooking(context.Background(), b))

	rec, _ := doJSON(t, router, http.MethodPost, "/api/bookings/bkg-1/auto-confirm", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := db.GetBookingByID(context.Background(), "bkg-1")
	assert.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
}

func TestCancelAndRefundEndpoints(t *testing.T) {
	router, db, _ := setupAPI(t)
	b := models.Booking{
		ID: "bkg-1", HostID: "host-1", PropertyID: "prop-1",
		CheckIn:  time.Now().AddDate(0, 0, 10),
		CheckOut: time.Now().AddDate(0, 0, 13),
		Currency: "RWF", TotalPrice: 10000,
		Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid,
		CancellationPolicyType: models.PolicyFair, CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBooking(context.Background(), b))

	rec, _ := doJSON(t, router, http.MethodPost, "/api/bookings/bkg-1/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Ten days out under the fair policy is a full refund.
	rec, resp := doJSON(t, router, http.MethodGet, "/api/bookings/bkg-1/refund", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var quote models.RefundResult
	assert.NoError(t, json.Unmarshal(data, &quote))
	assert.Equal(t, 100.0, quote.RefundPercentage)
	assert.Equal(t, 10000.0, quote.RefundAmount)
}

func TestRefundEndpointWithOrderID(t *testing.T) {
	router, db, _ := setupAPI(t)
	for _, id := range []string{"bkg-a", "bkg-b"} {
		b := models.Booking{
			ID: id, OrderID: "ord-1", HostID: "host-1", PropertyID: "prop-" + id,
			CheckIn:  time.Now().AddDate(0, 0, 10),
			CheckOut: time.Now().AddDate(0, 0, 13),
			Currency: "RWF", TotalPrice: 10000,
			Status: models.BookingCancelled, PaymentStatus: models.PaymentPaid,
			CancellationPolicyType: models.PolicyFair, CreatedAt: time.Now(),
		}
		assert.NoError(t, db.CreateBooking(context.Background(), b))
	}

	rec, resp := doJSON(t, router, http.MethodGet, "/api/bookings/bkg-a/refund?orderId=ord-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var quote models.RefundResult
	assert.NoError(t, json.Unmarshal(data, &quote))
	assert.Equal(t, 20000.0, quote.RefundAmount)
	assert.Len(t, quote.BookingIDs, 2)
}

func TestOrderEndpointReturnsCheckoutAndBookings(t *testing.T) {
	router, db, _ := setupAPI(t)
	seedListing(t, db, models.Listing{
		ID: "prop-1", ItemType: "property", HostID: "host-1", Published: true,
		Price: 10000, Currency: "RWF", CancellationPolicyType: models.PolicyFair,
	})
	seedListing(t, db, models.Listing{
		ID: "tour-1", ItemType: "tour", HostID: "host-2", Published: true,
		Price: 5000, Currency: "RWF", CancellationPolicyType: models.PolicyFlexible,
	})

	checkout := `{
		"guest_id": "guest-1",
		"phone_number": "250780000001",
		"provider": "MTN_MOMO_RWA",
		"payment_method": "mobile_money",
		"items": [
			{"item_type": "property", "item_id": "prop-1", "check_in": "2026-06-01T00:00:00Z", "check_out": "2026-06-04T00:00:00Z"},
			{"item_type": "tour", "item_id": "tour-1"}
		]
	}`
	rec, resp := doJSON(t, router, http.MethodPost, "/api/checkout", checkout)
	assert.Equal(t, http.StatusCreated, rec.Code)

	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var created booking.CheckoutResponse
	assert.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.OrderID)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/orders/"+created.OrderID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp.RequestID, "responses should echo the request id")

	data, err = json.Marshal(resp.Data)
	assert.NoError(t, err)
	var summary booking.OrderSummary
	assert.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, created.OrderID, summary.Order.ID)
	assert.Len(t, summary.Bookings, 2)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/orders/ord-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBookingNotFound(t *testing.T) {
	router, _, _ := setupAPI(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/bookings/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefundForUnpaidBookingIsEmpty(t *testing.T) {
	router, db, _ := setupAPI(t)
	b := models.Booking{
		ID: "bkg-1", HostID: "host-1", PropertyID: "prop-1",
		CheckIn:  time.Now().AddDate(0, 0, 10),
		CheckOut: time.Now().AddDate(0, 0, 13),
		Currency: "RWF", TotalPrice: 10000,
		Status: models.BookingCancelled, PaymentStatus: models.PaymentPending,
		CancellationPolicyType: models.PolicyFair, CreatedAt: time.Now(),
	}
	assert.NoError(t, db.CreateBooking(context.Background(), b))

	rec, resp := doJSON(t, router, http.MethodGet, "/api/bookings/bkg-1/refund", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	assert.NoError(t, err)
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, false, body["eligible"])
}
