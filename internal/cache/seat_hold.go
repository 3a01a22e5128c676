package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/redis/go-redis/v9"
)

// A hold is stored as "holder|heldAtMs|expiresAtMs" under one key per seat.
// The stored deadline is authoritative; the key's PX only reclaims memory.
var acquireHoldScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local exp = tonumber(string.match(cur, '|(%d+)$'))
  if exp and exp > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

var extendHoldScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local holder, held, exp = string.match(cur, '^(.*)|(%d+)|(%d+)$')
if holder ~= ARGV[1] or tonumber(exp) <= tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], holder .. '|' .. held .. '|' .. ARGV[3], 'PX', ARGV[4])
return 1
`)

// Deletes the hold only when it belongs to ARGV[1] and was taken no later
// than ARGV[2]; a newer acquisition of the same seat is left alone.
var releaseHeldScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local holder, held = string.match(cur, '^(.*)|(%d+)|%d+$')
if holder ~= ARGV[1] or tonumber(held) > tonumber(ARGV[2]) then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

type SeatHoldStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

type SeatHoldOption func(*SeatHoldStore)

func WithSeatHoldClock(now func() time.Time) SeatHoldOption {
	return func(s *SeatHoldStore) {
		s.now = now
	}
}

func NewSeatHoldStore(client redis.UniversalClient, opts ...SeatHoldOption) *SeatHoldStore {
	s := &SeatHoldStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SeatHoldStore) TryAcquire(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	value := encodeHold(holderID, now, expiresAt)

	res, err := acquireHoldScript.Run(ctx, s.client, []string{seatHoldKey(seat)},
		value, now.UnixMilli(), ttlMillis(ttl)).Int()
	if err != nil {
		return false, fmt.Errorf("acquire hold %s: %w", seat, err)
	}
	return res == 1, nil
}

func (s *SeatHoldStore) Extend(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := extendHoldScript.Run(ctx, s.client, []string{seatHoldKey(seat)},
		holderID, now.UnixMilli(), now.Add(ttl).UnixMilli(), ttlMillis(ttl)).Int()
	if err != nil {
		return false, fmt.Errorf("extend hold %s: %w", seat, err)
	}
	return res == 1, nil
}

func (s *SeatHoldStore) IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error) {
	hold, err := s.Status(ctx, seat)
	if err != nil {
		return false, err
	}
	return hold != nil && hold.HolderID == holderID, nil
}

func (s *SeatHoldStore) Release(ctx context.Context, seat domain.SeatKey) error {
	if err := s.client.Del(ctx, seatHoldKey(seat)).Err(); err != nil {
		return fmt.Errorf("release hold %s: %w", seat, err)
	}
	return nil
}

func (s *SeatHoldStore) ReleaseIfHeldBy(ctx context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error) {
	res, err := releaseHeldScript.Run(ctx, s.client, []string{seatHoldKey(seat)},
		holderID, acquiredBy.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("release hold %s: %w", seat, err)
	}
	return res == 1, nil
}

// Status returns nil when the seat has no live hold.
func (s *SeatHoldStore) Status(ctx context.Context, seat domain.SeatKey) (*domain.SeatHold, error) {
	raw, err := s.client.Get(ctx, seatHoldKey(seat)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get hold %s: %w", seat, err)
	}
	return s.liveHold(seat, raw)
}

// StatusBulk returns only the seats that currently carry a live hold.
func (s *SeatHoldStore) StatusBulk(ctx context.Context, seats []domain.SeatKey) (map[domain.SeatKey]domain.SeatHold, error) {
	out := make(map[domain.SeatKey]domain.SeatHold, len(seats))
	if len(seats) == 0 {
		return out, nil
	}

	keys := make([]string, len(seats))
	for i, seat := range seats {
		keys[i] = seatHoldKey(seat)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("bulk get holds: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		hold, err := s.liveHold(seats[i], raw)
		if err != nil {
			return nil, err
		}
		if hold != nil {
			out[seats[i]] = *hold
		}
	}
	return out, nil
}

func (s *SeatHoldStore) liveHold(seat domain.SeatKey, raw string) (*domain.SeatHold, error) {
	hold, err := decodeHold(seat, raw)
	if err != nil {
		return nil, err
	}
	if !hold.Live(s.now()) {
		return nil, nil
	}
	return &hold, nil
}

func encodeHold(holderID string, heldAt, expiresAt time.Time) string {
	return holderID + "|" + strconv.FormatInt(heldAt.UnixMilli(), 10) + "|" + strconv.FormatInt(expiresAt.UnixMilli(), 10)
}

func decodeHold(seat domain.SeatKey, raw string) (domain.SeatHold, error) {
	last := strings.LastIndexByte(raw, '|')
	if last < 0 {
		return domain.SeatHold{}, fmt.Errorf("malformed hold value %q", raw)
	}
	mid := strings.LastIndexByte(raw[:last], '|')
	if mid < 0 {
		return domain.SeatHold{}, fmt.Errorf("malformed hold value %q", raw)
	}

	heldAt, err := strconv.ParseInt(raw[mid+1:last], 10, 64)
	if err != nil {
		return domain.SeatHold{}, fmt.Errorf("malformed hold timestamp %q: %w", raw, err)
	}
	expiresAt, err := strconv.ParseInt(raw[last+1:], 10, 64)
	if err != nil {
		return domain.SeatHold{}, fmt.Errorf("malformed hold deadline %q: %w", raw, err)
	}

	return domain.SeatHold{
		EventID:   seat.EventID,
		SeatNo:    seat.SeatNo,
		HolderID:  raw[:mid],
		HeldAt:    time.UnixMilli(heldAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

func ttlMillis(ttl time.Duration) int64 {
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func seatHoldKey(seat domain.SeatKey) string {
	return fmt.Sprintf("seat:hold:%d:%d", seat.EventID, seat.SeatNo)
}
