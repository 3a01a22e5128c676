package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/kafka"
	"github.com/Domenick1991/seatrush/internal/repository/memory"
	"github.com/Domenick1991/seatrush/internal/service/reservation"
	"github.com/Domenick1991/seatrush/internal/service/wallet"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	commandsTopic = "payment-requests"
	resultsTopic  = "payment-results"
)

// bus keeps published messages per topic in the form a reader would deliver them.
type bus struct {
	mu     sync.Mutex
	topics map[string][]kafkago.Message
	err    error
}

func newBus() *bus {
	return &bus{topics: make(map[string][]kafkago.Message)}
}

func (b *bus) Publish(_ context.Context, topic, key string, value interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	msgs := b.topics[topic]
	b.topics[topic] = append(msgs, kafkago.Message{Topic: topic, Key: []byte(key), Value: payload, Offset: int64(len(msgs))})
	return nil
}

func (b *bus) messages(topic string) []kafkago.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]kafkago.Message(nil), b.topics[topic]...)
}

func decodeResult(t *testing.T, msg kafkago.Message) kafka.PaymentResult {
	t.Helper()
	var r kafka.PaymentResult
	require.NoError(t, json.Unmarshal(msg.Value, &r))
	return r
}

func commandMessage(t *testing.T, cmd kafka.PaymentCommand) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	return kafkago.Message{Topic: commandsTopic, Key: []byte(cmd.OwnerID), Value: payload}
}

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Pay(ctx context.Context, ownerID string, amount int64, key string) (int64, error) {
	args := m.Called(ctx, ownerID, amount, key)
	return args.Get(0).(int64), args.Error(1)
}

type MockOutcomes struct {
	mock.Mock
}

func (m *MockOutcomes) ApplyPaymentOutcome(ctx context.Context, outcome reservation.PaymentOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func TestProcessor_PaysAndPublishesSuccess(t *testing.T) {
	wallets := wallet.NewService(memory.NewWallets())
	b := newBus()
	p := NewProcessor(wallets, b, resultsTopic)
	ctx := context.Background()

	_, err := wallets.Charge(ctx, "owner-a", 100000, "charge-1")
	require.NoError(t, err)

	cmd := kafka.PaymentCommand{ReservationID: "res-1", OwnerID: "owner-a", Amount: 80000, IdempotencyKey: "pay-1"}
	require.NoError(t, p.HandleCommand(ctx, commandMessage(t, cmd)))
	require.NoError(t, p.HandleCommand(ctx, commandMessage(t, cmd)))

	results := b.messages(resultsTopic)
	require.Len(t, results, 2)
	for _, msg := range results {
		assert.Equal(t, "res-1", string(msg.Key))
		r := decodeResult(t, msg)
		assert.Equal(t, kafka.PaymentStatusSuccess, r.Status)
		assert.Equal(t, int64(20000), r.Balance)
	}

	entries, err := wallets.Ledger(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one charge and one payment")
}

func TestProcessor_InsufficientFundsIsAcked(t *testing.T) {
	wallets := wallet.NewService(memory.NewWallets())
	b := newBus()
	p := NewProcessor(wallets, b, resultsTopic)
	ctx := context.Background()

	_, err := wallets.Charge(ctx, "owner-a", 30000, "charge-1")
	require.NoError(t, err)

	cmd := kafka.PaymentCommand{ReservationID: "res-1", OwnerID: "owner-a", Amount: 50000, IdempotencyKey: "k1"}
	require.NoError(t, p.HandleCommand(ctx, commandMessage(t, cmd)))

	results := b.messages(resultsTopic)
	require.Len(t, results, 1)
	r := decodeResult(t, results[0])
	assert.Equal(t, kafka.PaymentStatusInsufficientBalance, r.Status)
	assert.NotEmpty(t, r.FailReason)

	balance, err := wallets.BalanceOf(ctx, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), balance)
}

func TestProcessor_InfrastructureErrorWithholdsAck(t *testing.T) {
	w := &MockWallet{}
	b := newBus()
	p := NewProcessor(w, b, resultsTopic)
	ctx := context.Background()
	boom := errors.New("connection refused")

	w.On("Pay", ctx, "owner-a", int64(500), "k").Return(int64(0), boom).Once()

	err := p.HandleCommand(ctx, commandMessage(t, kafka.PaymentCommand{ReservationID: "res-1", OwnerID: "owner-a", Amount: 500, IdempotencyKey: "k"}))

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.messages(resultsTopic))
	w.AssertExpectations(t)
}

func TestProcessor_PublishFailureWithholdsAck(t *testing.T) {
	w := &MockWallet{}
	b := newBus()
	b.err = errors.New("broker down")
	p := NewProcessor(w, b, resultsTopic)
	ctx := context.Background()

	w.On("Pay", ctx, "owner-a", int64(500), "k").Return(int64(100), nil).Once()

	err := p.HandleCommand(ctx, commandMessage(t, kafka.PaymentCommand{ReservationID: "res-1", OwnerID: "owner-a", Amount: 500, IdempotencyKey: "k"}))

	assert.Error(t, err)
}

func TestProcessor_MalformedCommandIsDropped(t *testing.T) {
	w := &MockWallet{}
	p := NewProcessor(w, newBus(), resultsTopic)

	err := p.HandleCommand(context.Background(), kafkago.Message{Value: []byte("{not json")})

	assert.NoError(t, err)
	w.AssertNotCalled(t, "Pay", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResultApplier_Handling(t *testing.T) {
	outcomes := &MockOutcomes{}
	a := NewResultApplier(outcomes, nil)
	ctx := context.Background()

	encode := func(r kafka.PaymentResult) kafkago.Message {
		payload, err := json.Marshal(r)
		require.NoError(t, err)
		return kafkago.Message{Value: payload}
	}

	outcomes.On("ApplyPaymentOutcome", ctx, reservation.PaymentOutcome{ReservationID: "r1", Succeeded: true}).Return(nil).Once()
	outcomes.On("ApplyPaymentOutcome", ctx, reservation.PaymentOutcome{ReservationID: "r2", FailReason: "INSUFFICIENT_BALANCE"}).Return(nil).Once()
	outcomes.On("ApplyPaymentOutcome", ctx, reservation.PaymentOutcome{ReservationID: "r3", Succeeded: true}).Return(domain.ErrReservationNotFound).Once()
	outcomes.On("ApplyPaymentOutcome", ctx, reservation.PaymentOutcome{ReservationID: "r4", Succeeded: true}).Return(errors.New("db down")).Once()

	assert.NoError(t, a.HandleResult(ctx, encode(kafka.PaymentResult{ReservationID: "r1", Status: kafka.PaymentStatusSuccess})))
	assert.NoError(t, a.HandleResult(ctx, encode(kafka.PaymentResult{ReservationID: "r2", Status: kafka.PaymentStatusInsufficientBalance})))
	assert.NoError(t, a.HandleResult(ctx, encode(kafka.PaymentResult{ReservationID: "r3", Status: kafka.PaymentStatusSuccess})))
	assert.Error(t, a.HandleResult(ctx, encode(kafka.PaymentResult{ReservationID: "r4", Status: kafka.PaymentStatusSuccess})))
	assert.NoError(t, a.HandleResult(ctx, kafkago.Message{Value: []byte("garbage")}))

	outcomes.AssertExpectations(t)
}

type staticAdmission struct{}

func (staticAdmission) Authorize(_ context.Context, token string) (string, error) {
	return "owner-" + token, nil
}

func (staticAdmission) Expire(context.Context, string) error { return nil }

type staticCatalog struct{}

func (staticCatalog) ScheduleExists(context.Context, int64) (bool, error) { return true, nil }
func (staticCatalog) SeatCount(context.Context, int64) (int, error)       { return 100, nil }
func (staticCatalog) PriceOf(context.Context, int64, int) (int64, error)  { return 80000, nil }

type countingSink struct {
	mu    sync.Mutex
	count int
}

func (s *countingSink) ReservationConfirmed(context.Context, domain.ReservationConfirmed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

// Drives assign -> confirm -> command -> result through the in-process bus,
// delivering the result message twice as a redelivery would.
func TestPipeline_DuplicateSuccessConfirmsOnce(t *testing.T) {
	ctx := context.Background()
	b := newBus()
	wallets := wallet.NewService(memory.NewWallets())
	sink := &countingSink{}
	reservations := reservation.NewService(
		memory.NewReservations(), staticAdmission{}, memory.NewSeatHolds(time.Now), staticCatalog{},
		b, commandsTopic, 5*time.Minute, 5*time.Minute,
		reservation.WithEventSink(sink), reservation.WithRefunder(wallets),
	)
	processor := NewProcessor(wallets, b, resultsTopic)
	applier := NewResultApplier(reservations, nil)

	_, err := wallets.Charge(ctx, "owner-a", 100000, "charge-1")
	require.NoError(t, err)

	res, err := reservations.AssignTemporary(ctx, reservation.AssignInput{Token: "a", EventID: 1, SeatNo: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(80000), res.Price)

	_, err = reservations.AssignTemporary(ctx, reservation.AssignInput{Token: "b", EventID: 1, SeatNo: 5})
	assert.ErrorIs(t, err, domain.ErrSeatAlreadyAssigned)

	_, err = reservations.RequestConfirmation(ctx, reservation.ConfirmInput{Token: "a", ReservationID: res.ID, IdempotencyKey: "pay-1"})
	require.NoError(t, err)

	commands := b.messages(commandsTopic)
	require.Len(t, commands, 1)
	assert.Equal(t, "owner-a", string(commands[0].Key))
	require.NoError(t, processor.HandleCommand(ctx, commands[0]))
	require.NoError(t, processor.HandleCommand(ctx, commands[0]))

	for _, msg := range b.messages(resultsTopic) {
		require.NoError(t, applier.HandleResult(ctx, msg))
		require.NoError(t, applier.HandleResult(ctx, msg))
	}

	stored, err := reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, stored.Status)
	assert.Equal(t, 1, sink.count)

	entries, err := wallets.Ledger(ctx, "owner-a")
	require.NoError(t, err)
	payments := 0
	for _, e := range entries {
		if e.Reason == domain.LedgerReasonPayment {
			payments++
		}
	}
	assert.Equal(t, 1, payments)

	balance, err := wallets.BalanceOf(ctx, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance)
}
