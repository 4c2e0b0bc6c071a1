package payout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
)

type MockPayoutStore struct {
	mock.Mock
}

func (m *MockPayoutStore) SavePayout(payout *models.Payout) error {
	args := m.Called(payout)
	return args.Error(0)
}

func (m *MockPayoutStore) GetPayout(id string) (*models.Payout, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payout), args.Error(1)
}

func (m *MockPayoutStore) UpdatePayout(payout *models.Payout) error {
	args := m.Called(payout)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePayout(ctx context.Context, req models.PayoutRequest) (*gateway.PayoutResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PayoutResponse), args.Error(1)
}

func (m *MockGateway) GetPayoutStatus(ctx context.Context, payoutID string) (*gateway.PayoutResponse, error) {
	args := m.Called(ctx, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PayoutResponse), args.Error(1)
}

type MockPayoutPublisher struct {
	mock.Mock
}

func (m *MockPayoutPublisher) PublishPayoutCompleted(ctx context.Context, payout *models.Payout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

type MockBookingReader struct {
	mock.Mock
}

func (m *MockBookingReader) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type payoutFixture struct {
	store     *MockPayoutStore
	bookings  *MockBookingReader
	gateway   *MockGateway
	publisher *MockPayoutPublisher
	service   *Service
}

func setupPayout(t *testing.T) *payoutFixture {
	t.Helper()
	log := logger.NewLogger()
	t.Cleanup(log.Close)

	f := &payoutFixture{
		store:     new(MockPayoutStore),
		bookings:  new(MockBookingReader),
		gateway:   new(MockGateway),
		publisher: new(MockPayoutPublisher),
	}
	f.service = NewService(f.store, f.bookings, f.gateway, f.publisher, config.PawaPayConfig{
		MinPayoutAmount: 100,
	}, log)
	return f
}

func validRequest() models.PayoutRequest {
	return models.PayoutRequest{
		PayoutID:    "po-1",
		Amount:      15000,
		Currency:    "RWF",
		PhoneNumber: "250780000001",
		Provider:    "MTN_MOMO_RWA",
		HostID:      "host-1",
	}
}

func TestInitiatePayoutEnqueued(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-1").Return(nil, storage.ErrPayoutNotFound)
	f.store.On("SavePayout", mock.Anything).Return(nil)
	f.gateway.On("InitiatePayout", mock.Anything, mock.Anything).Return(&gateway.PayoutResponse{
		PayoutID: "po-1",
		Status:   models.ProviderEnqueued,
	}, nil)
	f.store.On("UpdatePayout", mock.Anything).Return(nil)

	result, err := f.service.InitiatePayout(context.Background(), validRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, result.Status)
	f.publisher.AssertNotCalled(t, "PublishPayoutCompleted", mock.Anything, mock.Anything)
}

func TestInitiatePayoutBelowMinimumNeverReachesProvider(t *testing.T) {
	f := setupPayout(t)

	req := validRequest()
	req.Amount = 50

	_, err := f.service.InitiatePayout(context.Background(), req)

	assert.True(t, errors.Is(err, ErrBelowMinimum))
	f.gateway.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "SavePayout", mock.Anything)
}

func TestInitiatePayoutMissingFields(t *testing.T) {
	f := setupPayout(t)

	req := validRequest()
	req.PhoneNumber = ""

	_, err := f.service.InitiatePayout(context.Background(), req)

	assert.True(t, errors.Is(err, ErrInvalidPayout))
	f.gateway.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)
}

func TestInitiatePayoutDerivesAmountFromBooking(t *testing.T) {
	f := setupPayout(t)

	// 20000 RWF accommodation booking with a 3% platform fee leaves
	// 19400 for the host.
	f.bookings.On("GetBookingByID", mock.Anything, "bkg-1").Return(&models.Booking{
		ID:            "bkg-1",
		HostID:        "host-9",
		TotalPrice:    20000,
		Currency:      "RWF",
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentPaid,
	}, nil)
	f.store.On("GetPayout", "po-1").Return(nil, storage.ErrPayoutNotFound)
	f.store.On("SavePayout", mock.MatchedBy(func(p *models.Payout) bool {
		return p.Amount == 19400 && p.Currency == "RWF" && p.HostID == "host-9" && p.BookingID == "bkg-1"
	})).Return(nil)
	f.gateway.On("InitiatePayout", mock.Anything, mock.MatchedBy(func(r models.PayoutRequest) bool {
		return r.Amount == 19400
	})).Return(&gateway.PayoutResponse{PayoutID: "po-1", Status: models.ProviderAccepted}, nil)
	f.store.On("UpdatePayout", mock.Anything).Return(nil)

	req := models.PayoutRequest{
		PayoutID:    "po-1",
		BookingID:   "bkg-1",
		PhoneNumber: "250780000001",
		Provider:    "MTN_MOMO_RWA",
	}
	result, err := f.service.InitiatePayout(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, result.Status)
	f.store.AssertExpectations(t)
}

func TestInitiatePayoutUnpaidBookingRejected(t *testing.T) {
	f := setupPayout(t)

	f.bookings.On("GetBookingByID", mock.Anything, "bkg-1").Return(&models.Booking{
		ID:            "bkg-1",
		TotalPrice:    20000,
		Currency:      "RWF",
		PaymentStatus: models.PaymentPending,
	}, nil)

	req := models.PayoutRequest{
		PayoutID:    "po-1",
		BookingID:   "bkg-1",
		PhoneNumber: "250780000001",
		Provider:    "MTN_MOMO_RWA",
	}
	_, err := f.service.InitiatePayout(context.Background(), req)

	assert.True(t, errors.Is(err, ErrInvalidPayout))
	f.gateway.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)
}

func TestInitiatePayoutIsIdempotent(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-1").Return(&models.Payout{
		ID:     "po-1",
		Status: models.PayoutCompleted,
	}, nil)

	result, err := f.service.InitiatePayout(context.Background(), validRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, result.Status)
	f.gateway.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "SavePayout", mock.Anything)
}

func TestInitiatePayoutRejectionMarksFailed(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-1").Return(nil, storage.ErrPayoutNotFound)
	f.store.On("SavePayout", mock.Anything).Return(nil)
	f.gateway.On("InitiatePayout", mock.Anything, mock.Anything).Return(nil, gateway.ErrProviderRejected)
	f.store.On("UpdatePayout", mock.MatchedBy(func(p *models.Payout) bool {
		return p.Status == models.PayoutFailed
	})).Return(nil)

	result, err := f.service.InitiatePayout(context.Background(), validRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, result.Status)
	f.store.AssertExpectations(t)
}

func TestInitiatePayoutTransientErrorKeepsProcessing(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-1").Return(nil, storage.ErrPayoutNotFound)
	f.store.On("SavePayout", mock.Anything).Return(nil)
	f.gateway.On("InitiatePayout", mock.Anything, mock.Anything).Return(nil, gateway.ErrProviderUnavailable)

	_, err := f.service.InitiatePayout(context.Background(), validRequest())

	assert.True(t, errors.Is(err, gateway.ErrProviderUnavailable))
	// No terminal state is recorded; the poll settles it later.
	f.store.AssertNotCalled(t, "UpdatePayout", mock.Anything)
}

func TestGetPayoutStatusCompletedPublishesEvent(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-2").Return(&models.Payout{
		ID:     "po-2",
		Status: models.PayoutProcessing,
	}, nil)
	f.gateway.On("GetPayoutStatus", mock.Anything, "po-2").Return(&gateway.PayoutResponse{
		PayoutID: "po-2",
		Status:   models.ProviderCompleted,
	}, nil)
	f.store.On("UpdatePayout", mock.MatchedBy(func(p *models.Payout) bool {
		return p.Status == models.PayoutCompleted
	})).Return(nil)
	f.publisher.On("PublishPayoutCompleted", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GetPayoutStatus(context.Background(), "po-2")

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, result.Status)
	f.publisher.AssertExpectations(t)
}

func TestGetPayoutStatusTerminalSkipsProvider(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-3").Return(&models.Payout{
		ID:            "po-3",
		Status:        models.PayoutFailed,
		FailureReason: "Recipient wallet closed",
	}, nil)

	result, err := f.service.GetPayoutStatus(context.Background(), "po-3")

	assert.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, result.Status)
	assert.Equal(t, "Recipient wallet closed", result.FailureMessage)
	f.gateway.AssertNotCalled(t, "GetPayoutStatus", mock.Anything, mock.Anything)
}

func TestGetPayoutStatusUnknownPayout(t *testing.T) {
	f := setupPayout(t)

	f.store.On("GetPayout", "po-missing").Return(nil, storage.ErrPayoutNotFound)

	_, err := f.service.GetPayoutStatus(context.Background(), "po-missing")

	assert.True(t, errors.Is(err, storage.ErrPayoutNotFound))
}
