package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"roleguard/cmd/security/token"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores sessions in Redis.
//
// Layout (P = key prefix):
//
//	P:sess:<digest>   hash {username, role, created_at, expires_at} (µs since epoch)
//	P:user:<username> sorted set of digests scored by created_at
//
// Raw session ids never reach Redis. Admission runs as one Lua script, so the
// count-evict-insert sequence is atomic per username across all instances.
// Session keys are derived inside the scripts, which ties a deployment to a
// single Redis node (no cluster slot routing).
type RedisRegistry struct {
	rdb    redis.UniversalClient
	cfg    Config
	now    func() time.Time
	hasher token.Hasher
	prefix string
}

// NewRedisRegistry returns a registry backed by rdb. The client is owned by the caller.
func NewRedisRegistry(rdb redis.UniversalClient, cfg Config, opts ...Option) (*RedisRegistry, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	o := buildOptions(opts)
	return &RedisRegistry{
		rdb:    rdb,
		cfg:    cfg,
		now:    o.now,
		hasher: o.hasher,
		prefix: o.prefix,
	}, nil
}

// admitScript
// KEYS[1] user set, KEYS[2] new session hash
// ARGV: digest, username, role, created_us, expires_us, max, block, ttl_ms, session key prefix
// Returns {0} when blocked, else {1, evicted digests...}.
var admitScript = redis.NewScript(`
local zkey = KEYS[1]
local skey = KEYS[2]
local spfx = ARGV[9]
local max = tonumber(ARGV[6])
local ttl = tonumber(ARGV[8])

local now = tonumber(ARGV[4])
local members = redis.call('ZRANGE', zkey, 0, -1)
for _, m in ipairs(members) do
  local exp = redis.call('HGET', spfx .. m, 'expires_at')
  if not exp then
    redis.call('ZREM', zkey, m)
  elseif tonumber(exp) > 0 and tonumber(exp) <= now then
    redis.call('ZREM', zkey, m)
    redis.call('DEL', spfx .. m)
  end
end

local evicted = {}
if max > 0 then
  local count = redis.call('ZCARD', zkey)
  if count >= max then
    if ARGV[7] == '1' then
      return {0}
    end
    local oldest = redis.call('ZRANGE', zkey, 0, count - max)
    for _, m in ipairs(oldest) do
      redis.call('ZREM', zkey, m)
      redis.call('DEL', spfx .. m)
      table.insert(evicted, m)
    end
  end
end

redis.call('HSET', skey, 'username', ARGV[2], 'role', ARGV[3], 'created_at', ARGV[4], 'expires_at', ARGV[5])
redis.call('ZADD', zkey, ARGV[4], ARGV[1])
if ttl > 0 then
  redis.call('PEXPIRE', skey, ttl)
  redis.call('PEXPIRE', zkey, ttl)
end

local out = {1}
for _, m in ipairs(evicted) do
  table.insert(out, m)
end
return out
`)

// invalidateScript
// KEYS[1] session hash
// ARGV: user set prefix, digest
var invalidateScript = redis.NewScript(`
local u = redis.call('HGET', KEYS[1], 'username')
if u then
  redis.call('ZREM', ARGV[1] .. u, ARGV[2])
  redis.call('DEL', KEYS[1])
end
return 1
`)

func (r *RedisRegistry) userKey(username string) string { return r.prefix + ":user:" + username }
func (r *RedisRegistry) sessPrefix() string { return r.prefix + ":sess:" }
func (r *RedisRegistry) sessKey(digest string) string { return r.sessPrefix() + digest }

// Admit implements Registry.
func (r *RedisRegistry) Admit(ctx context.Context, p Principal) (Admission, error) {
	id, err := newSessionID()
	if err != nil {
		return Admission{}, fmt.Errorf("session: id: %w", err)
	}

	now := r.now()
	// Redis scores are float64; microseconds stay exact.
	now = now.Truncate(time.Microsecond)
	exp := expiresAt(r.cfg, now)
	digest := r.hasher.Digest(id)

	block := "0"
	if r.cfg.BlockNewOnExceed {
		block = "1"
	}

	res, err := admitScript.Run(ctx, r.rdb,
		[]string{r.userKey(p.Username), r.sessKey(digest)},
		digest,
		p.Username,
		p.Role,
		now.UnixMicro(),
		unixMicroOrZero(exp),
		r.cfg.MaxSessions,
		block,
		r.cfg.TTL.Milliseconds(),
		r.sessPrefix(),
	).Slice()
	if err != nil {
		return Admission{}, fmt.Errorf("session: redis admit: %w", err)
	}
	if len(res) == 0 {
		return Admission{}, fmt.Errorf("session: redis admit: empty reply")
	}

	if ok, _ := res[0].(int64); ok != 1 {
		return Admission{Admitted: false}, nil
	}

	evicted := make([]string, 0, len(res)-1)
	for _, v := range res[1:] {
		if s, ok := v.(string); ok {
			evicted = append(evicted, s)
		}
	}

	return Admission{
		Admitted: true,
		Session: Session{
			ID:        id,
			Handle:    digest,
			Username:  p.Username,
			Role:      p.Role,
			CreatedAt: now,
			ExpiresAt: exp,
		},
		Evicted: evicted,
	}, nil
}

// Resolve implements Registry.
func (r *RedisRegistry) Resolve(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionNotFound
	}
	digest := r.hasher.Digest(id)

	s, err := r.load(ctx, digest)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(r.now()) {
		_ = r.invalidateDigest(ctx, digest)
		return Session{}, ErrSessionNotFound
	}
	s.ID = id
	return s, nil
}

// Invalidate implements Registry.
func (r *RedisRegistry) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return r.invalidateDigest(ctx, r.hasher.Digest(id))
}

func (r *RedisRegistry) invalidateDigest(ctx context.Context, digest string) error {
	err := invalidateScript.Run(ctx, r.rdb,
		[]string{r.sessKey(digest)},
		r.prefix+":user:",
		digest,
	).Err()
	if err != nil {
		return fmt.Errorf("session: redis invalidate: %w", err)
	}
	return nil
}

// Active implements Registry.
func (r *RedisRegistry) Active(ctx context.Context, username string) ([]Session, error) {
	digests, err := r.rdb.ZRange(ctx, r.userKey(username), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis active: %w", err)
	}

	now := r.now()
	out := make([]Session, 0, len(digests))
	for _, d := range digests {
		s, err := r.load(ctx, d)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Expired(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisRegistry) load(ctx context.Context, digest string) (Session, error) {
	m, err := r.rdb.HGetAll(ctx, r.sessKey(digest)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("session: redis load: %w", err)
	}
	if len(m) == 0 {
		return Session{}, ErrSessionNotFound
	}

	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("session: redis load: bad created_at: %w", err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("session: redis load: bad expires_at: %w", err)
	}

	s := Session{
		Handle:    digest,
		Username:  m["username"],
		Role:      m["role"],
		CreatedAt: time.UnixMicro(created).UTC(),
	}
	if expires > 0 {
		s.ExpiresAt = time.UnixMicro(expires).UTC()
	}
	return s, nil
}

func unixMicroOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
