package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockReservationUseCase is a mock implementation of reservation.ReservationUseCase
type MockReservationUseCase struct {
	mock.Mock
}

func (m *MockReservationUseCase) AssignTemporary(ctx context.Context, input reservation.AssignInput) (*domain.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationUseCase) RequestConfirmation(ctx context.Context, input reservation.ConfirmInput) (*domain.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationUseCase) ApplyPaymentOutcome(ctx context.Context, outcome reservation.PaymentOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockReservationUseCase) Cancel(ctx context.Context, token, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, token, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationUseCase) ExpireStale(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

func (m *MockReservationUseCase) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func testReservation(status domain.ReservationStatus) *domain.Reservation {
	return &domain.Reservation{
		ID:              "res-1",
		OwnerID:         "owner-a",
		EventID:         1,
		SeatNo:          5,
		Price:           80000,
		Status:          status,
		TemporaryHeldAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReservationHandler_create(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	body, _ := json.Marshal(createReservationRequest{EventID: 1, SeatNo: 5})
	c.Request = httptest.NewRequest("POST", "/reservations", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set(headerQueueToken, "tok-a")

	input := reservation.AssignInput{Token: "tok-a", EventID: 1, SeatNo: 5}
	mockService.On("AssignTemporary", c.Request.Context(), input).Return(testReservation(domain.ReservationStatusTemporaryAssigned), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response reservationResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "res-1", response.ID)
	assert.Equal(t, int64(80000), response.Price)
	assert.Equal(t, string(domain.ReservationStatusTemporaryAssigned), response.Status)

	mockService.AssertExpectations(t)
}

func TestReservationHandler_create_SeatTaken(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	body, _ := json.Marshal(createReservationRequest{EventID: 1, SeatNo: 5})
	c.Request = httptest.NewRequest("POST", "/reservations", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set(headerQueueToken, "tok-b")

	input := reservation.AssignInput{Token: "tok-b", EventID: 1, SeatNo: 5}
	mockService.On("AssignTemporary", c.Request.Context(), input).Return(nil, domain.ErrSeatAlreadyAssigned)

	handler.create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_create_BadBody(t *testing.T) {
	handler := NewReservationHandler(&MockReservationUseCase{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/reservations", bytes.NewReader([]byte(`{"event_id":1}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReservationHandler_confirm(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	c.Request = httptest.NewRequest("POST", "/reservations/res-1/confirm", nil)
	c.Request.Header.Set(headerQueueToken, "tok-a")
	c.Request.Header.Set(headerIdempotencyKey, "pay-1")

	input := reservation.ConfirmInput{Token: "tok-a", ReservationID: "res-1", IdempotencyKey: "pay-1"}
	mockService.On("RequestConfirmation", c.Request.Context(), input).Return(testReservation(domain.ReservationStatusPaymentPending), nil)

	handler.confirm(c)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response reservationResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.ReservationStatusPaymentPending), response.Status)

	mockService.AssertExpectations(t)
}

func TestReservationHandler_confirm_Expired(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	c.Request = httptest.NewRequest("POST", "/reservations/res-1/confirm", nil)
	c.Request.Header.Set(headerQueueToken, "tok-a")
	c.Request.Header.Set(headerIdempotencyKey, "pay-1")

	input := reservation.ConfirmInput{Token: "tok-a", ReservationID: "res-1", IdempotencyKey: "pay-1"}
	mockService.On("RequestConfirmation", c.Request.Context(), input).Return(nil, domain.ErrReservationExpired)

	handler.confirm(c)

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestReservationHandler_cancel(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	c.Request = httptest.NewRequest("DELETE", "/reservations/res-1", nil)
	c.Request.Header.Set(headerQueueToken, "tok-a")

	mockService.On("Cancel", c.Request.Context(), "tok-a", "res-1").Return(testReservation(domain.ReservationStatusCancelled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response reservationResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.ReservationStatusCancelled), response.Status)

	mockService.AssertExpectations(t)
}

func TestReservationHandler_get_InfrastructureError(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	c.Request = httptest.NewRequest("GET", "/reservations/res-1", nil)

	mockService.On("Get", c.Request.Context(), "res-1").Return(nil, errors.New("pool closed"))

	handler.get(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "pool closed")
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrSeatAlreadyHeld:     http.StatusConflict,
		domain.ErrVersionConflict:     http.StatusConflict,
		domain.ErrInvalidTransition:   http.StatusConflict,
		domain.ErrReservationNotFound: http.StatusNotFound,
		domain.ErrSeatNotFound:        http.StatusNotFound,
		domain.ErrUnauthorized:        http.StatusForbidden,
		domain.ErrTokenNotActive:      http.StatusForbidden,
		domain.ErrTokenExpired:        http.StatusGone,
		domain.ErrInsufficientFunds:   http.StatusPaymentRequired,
		domain.ErrInvalidInput:        http.StatusBadRequest,
		domain.ErrInvalidAmount:       http.StatusBadRequest,
	}
	for err, code := range cases {
		assert.Equal(t, code, statusFor(err), err.Error())
	}
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.New("dial tcp: refused")))
}
