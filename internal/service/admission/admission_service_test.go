package admission

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Domenick1991/seatrush/internal/cache"
	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Issue(ctx context.Context, tokenID, ownerID string) (domain.AdmissionToken, error) {
	args := m.Called(ctx, tokenID, ownerID)
	return args.Get(0).(domain.AdmissionToken), args.Error(1)
}

func (m *MockStore) Lookup(ctx context.Context, tokenID string) (domain.AdmissionToken, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(domain.AdmissionToken), args.Error(1)
}

func (m *MockStore) IsActive(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) WaitingPosition(ctx context.Context, tokenID string) (int64, bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockStore) ActiveCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) WaitingCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Expire(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) PromoteOne(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func newRedisService(t *testing.T, capacity int) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewAdmissionStore(client, cache.AdmissionStoreConfig{
		Capacity:  capacity,
		TokenTTL:  10 * time.Minute,
		ActiveTTL: 10 * time.Minute,
	})
	return NewService(store)
}

func TestService_Issue_RequiresOwner(t *testing.T) {
	svc := NewService(&MockStore{})

	_, err := svc.Issue(context.Background(), "  ")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_Issue_PropagatesStoreFailure(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store, WithIDGenerator(func() string { return "tok-1" }))
	ctx := context.Background()

	store.On("Issue", ctx, "tok-1", "owner-a").Return(domain.AdmissionToken{}, errors.New("redis down")).Once()

	_, err := svc.Issue(ctx, "owner-a")

	assert.ErrorContains(t, err, "redis down")
	store.AssertExpectations(t)
}

func TestService_Authorize(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store)
	ctx := context.Background()

	store.On("Lookup", ctx, "active").Return(domain.AdmissionToken{ID: "active", OwnerID: "owner-a", State: domain.TokenStateActive}, nil).Once()
	store.On("Lookup", ctx, "waiting").Return(domain.AdmissionToken{ID: "waiting", OwnerID: "owner-b", State: domain.TokenStateWaiting}, nil).Once()
	store.On("Lookup", ctx, "gone").Return(domain.AdmissionToken{ID: "gone", State: domain.TokenStateExpired}, nil).Once()

	owner, err := svc.Authorize(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	_, err = svc.Authorize(ctx, "waiting")
	assert.ErrorIs(t, err, domain.ErrTokenNotActive)

	_, err = svc.Authorize(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	_, err = svc.Authorize(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	store.AssertExpectations(t)
}

func TestService_PromoteNext_StopsWhenNothingToPromote(t *testing.T) {
	store := &MockStore{}
	svc := NewService(store)
	ctx := context.Background()

	store.On("PromoteOne", ctx).Return("tok-1", nil).Once()
	store.On("PromoteOne", ctx).Return("", nil).Once()
	store.On("ActiveCount", ctx).Return(int64(3), nil).Once()
	store.On("WaitingCount", ctx).Return(int64(0), nil).Once()

	n, err := svc.PromoteNext(ctx, 5)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertExpectations(t)
}

func TestService_AdmissionBound(t *testing.T) {
	svc := newRedisService(t, 3)
	ctx := context.Background()

	var tokens []domain.AdmissionToken
	for i := 0; i < 5; i++ {
		tok, err := svc.Issue(ctx, fmt.Sprintf("owner-%d", i))
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}

	for i, tok := range tokens {
		if i < 3 {
			assert.Equal(t, domain.TokenStateActive, tok.State)
		} else {
			assert.Equal(t, domain.TokenStateWaiting, tok.State)
		}
	}

	status, err := svc.Status(ctx, tokens[4].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Position)

	require.NoError(t, svc.Expire(ctx, tokens[0].ID))
	require.NoError(t, svc.Expire(ctx, tokens[0].ID))

	n, err := svc.PromoteNext(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	owner, err := svc.Authorize(ctx, tokens[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "owner-3", owner)

	_, err = svc.Authorize(ctx, tokens[4].ID)
	assert.ErrorIs(t, err, domain.ErrTokenNotActive)

	_, err = svc.Authorize(ctx, tokens[0].ID)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}
