package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	admissionActiveKey   = "admission:active"
	admissionWaitingKey  = "admission:waiting"
	admissionSeqKey      = "admission:seq"
	admissionTokenPrefix = "admission:token:"
	admissionOwnerPrefix = "admission:owner:"
)

// The active set is a ZSET scored by activity deadline (ms). Entries whose
// deadline has passed are purged before every capacity comparison, so the
// active count is always ZCARD and can never go negative.
var issueTokenScript = redis.NewScript(`
local now = tonumber(ARGV[3])
local existing = redis.call('GET', KEYS[4])
if existing then
  local tkey = ARGV[7] .. existing
  if redis.call('EXISTS', tkey) == 1 then
    local score = redis.call('ZSCORE', KEYS[1], existing)
    if score and tonumber(score) > now then
      return {existing, 'ACTIVE', redis.call('HGET', tkey, 'issued_at')}
    end
    if redis.call('ZSCORE', KEYS[2], existing) then
      return {existing, 'WAITING', redis.call('HGET', tkey, 'issued_at')}
    end
  end
  redis.call('ZREM', KEYS[1], existing)
  redis.call('ZREM', KEYS[2], existing)
  redis.call('DEL', tkey)
end

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now)

local id = ARGV[1]
local tkey = ARGV[7] .. id
local state = 'WAITING'
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[4]) then
  state = 'ACTIVE'
  redis.call('ZADD', KEYS[1], now + tonumber(ARGV[5]), id)
else
  local seq = redis.call('INCR', KEYS[3])
  redis.call('ZADD', KEYS[2], seq, id)
end
redis.call('HSET', tkey, 'owner', ARGV[2], 'state', state, 'issued_at', ARGV[3])
redis.call('PEXPIRE', tkey, ARGV[6])
redis.call('SET', KEYS[4], id, 'PX', ARGV[6])
return {id, state, ARGV[3]}
`)

// Moves at most one token from the head of the waiting set into the active
// set. Capacity is re-checked on every call. Heads whose token record has
// lapsed are dropped and the next head is tried. The promoted token record
// and its owner pointer live at least as long as the active window.
var promoteOneScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now)
while true do
  if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
    return false
  end
  local head = redis.call('ZRANGE', KEYS[2], 0, 0)
  if #head == 0 then
    return false
  end
  local id = head[1]
  redis.call('ZREM', KEYS[2], id)
  local tkey = ARGV[4] .. id
  if redis.call('EXISTS', tkey) == 1 then
    redis.call('ZADD', KEYS[1], now + window, id)
    redis.call('HSET', tkey, 'state', 'ACTIVE')
    if redis.call('PTTL', tkey) < window then
      redis.call('PEXPIRE', tkey, window)
    end
    local owner = redis.call('HGET', tkey, 'owner')
    if owner then
      local okey = ARGV[5] .. owner
      if redis.call('GET', okey) == id and redis.call('PTTL', okey) < window then
        redis.call('PEXPIRE', okey, window)
      end
    end
    return id
  end
end
`)

var expireTokenScript = redis.NewScript(`
local tkey = ARGV[2] .. ARGV[1]
local owner = redis.call('HGET', tkey, 'owner')
local removed = redis.call('ZREM', KEYS[1], ARGV[1]) + redis.call('ZREM', KEYS[2], ARGV[1])
if owner then
  local okey = ARGV[3] .. owner
  if redis.call('GET', okey) == ARGV[1] then
    redis.call('DEL', okey)
  end
end
redis.call('DEL', tkey)
return removed
`)

type AdmissionStoreConfig struct {
	Capacity  int
	TokenTTL  time.Duration
	ActiveTTL time.Duration
}

type AdmissionStore struct {
	client redis.UniversalClient
	cfg    AdmissionStoreConfig
	now    func() time.Time
}

type AdmissionOption func(*AdmissionStore)

func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(s *AdmissionStore) {
		s.now = now
	}
}

func NewAdmissionStore(client redis.UniversalClient, cfg AdmissionStoreConfig, opts ...AdmissionOption) *AdmissionStore {
	if cfg.ActiveTTL <= 0 || cfg.ActiveTTL > cfg.TokenTTL {
		cfg.ActiveTTL = cfg.TokenTTL
	}
	s := &AdmissionStore{client: client, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AdmissionStore) Capacity() int {
	return s.cfg.Capacity
}

// Issue returns the owner's live token, or creates one that is ACTIVE when a
// slot is free and WAITING otherwise.
func (s *AdmissionStore) Issue(ctx context.Context, tokenID, ownerID string) (domain.AdmissionToken, error) {
	now := s.now()
	keys := []string{admissionActiveKey, admissionWaitingKey, admissionSeqKey, admissionOwnerPrefix + ownerID}
	res, err := issueTokenScript.Run(ctx, s.client, keys,
		tokenID, ownerID, now.UnixMilli(), s.cfg.Capacity,
		ttlMillis(s.cfg.ActiveTTL), ttlMillis(s.cfg.TokenTTL), admissionTokenPrefix,
	).StringSlice()
	if err != nil {
		return domain.AdmissionToken{}, fmt.Errorf("issue admission token: %w", err)
	}
	if len(res) != 3 {
		return domain.AdmissionToken{}, fmt.Errorf("issue admission token: unexpected reply %v", res)
	}

	issuedAt, err := strconv.ParseInt(res[2], 10, 64)
	if err != nil {
		return domain.AdmissionToken{}, fmt.Errorf("issue admission token: bad issued_at %q: %w", res[2], err)
	}
	return domain.AdmissionToken{
		ID:       res[0],
		OwnerID:  ownerID,
		State:    domain.TokenState(res[1]),
		IssuedAt: time.UnixMilli(issuedAt),
	}, nil
}

// Lookup never fails for unknown tokens; they come back EXPIRED.
func (s *AdmissionStore) Lookup(ctx context.Context, tokenID string) (domain.AdmissionToken, error) {
	now := s.now()
	pipe := s.client.Pipeline()
	fields := pipe.HMGet(ctx, admissionTokenPrefix+tokenID, "owner", "issued_at")
	activeScore := pipe.ZScore(ctx, admissionActiveKey, tokenID)
	waitingScore := pipe.ZScore(ctx, admissionWaitingKey, tokenID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.AdmissionToken{}, fmt.Errorf("lookup admission token: %w", err)
	}

	token := domain.AdmissionToken{ID: tokenID, State: domain.TokenStateExpired}
	vals := fields.Val()
	owner, _ := vals[0].(string)
	if owner == "" {
		return token, nil
	}
	token.OwnerID = owner
	if raw, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			token.IssuedAt = time.UnixMilli(ms)
		}
	}

	switch {
	case activeScore.Err() == nil && int64(activeScore.Val()) > now.UnixMilli():
		token.State = domain.TokenStateActive
	case waitingScore.Err() == nil:
		token.State = domain.TokenStateWaiting
	}
	return token, nil
}

func (s *AdmissionStore) IsActive(ctx context.Context, tokenID string) (bool, error) {
	score, err := s.client.ZScore(ctx, admissionActiveKey, tokenID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("check admission token: %w", err)
	}
	return int64(score) > s.now().UnixMilli(), nil
}

// WaitingPosition is 1-based; ok is false when the token is not waiting.
func (s *AdmissionStore) WaitingPosition(ctx context.Context, tokenID string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, admissionWaitingKey, tokenID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("waiting position: %w", err)
	}
	return rank + 1, true, nil
}

func (s *AdmissionStore) ActiveCount(ctx context.Context) (int64, error) {
	lower := "(" + strconv.FormatInt(s.now().UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, admissionActiveKey, lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return n, nil
}

func (s *AdmissionStore) WaitingCount(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, admissionWaitingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("waiting count: %w", err)
	}
	return n, nil
}

// Expire reports whether the token was still queued. Expiring twice is harmless.
func (s *AdmissionStore) Expire(ctx context.Context, tokenID string) (bool, error) {
	removed, err := expireTokenScript.Run(ctx, s.client, []string{admissionActiveKey, admissionWaitingKey},
		tokenID, admissionTokenPrefix, admissionOwnerPrefix).Int()
	if err != nil {
		return false, fmt.Errorf("expire admission token: %w", err)
	}
	return removed > 0, nil
}

// PromoteOne returns the promoted token id, or "" when there was no free slot
// or nobody waiting.
func (s *AdmissionStore) PromoteOne(ctx context.Context) (string, error) {
	id, err := promoteOneScript.Run(ctx, s.client, []string{admissionActiveKey, admissionWaitingKey},
		s.now().UnixMilli(), s.cfg.Capacity, ttlMillis(s.cfg.ActiveTTL), admissionTokenPrefix, admissionOwnerPrefix,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("promote admission token: %w", err)
	}
	return id, nil
}
