package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

var (
	// ErrNotFound is returned for unknown, expired or evicted sessions
	ErrNotFound = errors.New("session not found")
	// ErrRememberInvalid is returned for unknown or expired remember tokens
	ErrRememberInvalid = errors.New("remember token invalid")
	// ErrRememberReused is returned when an already rotated remember token
	// is presented again
	ErrRememberReused = errors.New("remember token reused")
)

// Config tunes the authority
type Config struct {
	// MaxSessions caps concurrent sessions per identity; the oldest is
	// evicted when a new one would exceed it
	MaxSessions int
	SessionTTL  time.Duration
	RememberTTL time.Duration
	KeyPrefix   string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxSessions: 3,
		SessionTTL:  12 * time.Hour,
		RememberTTL: 7 * 24 * time.Hour,
		KeyPrefix:   "warden",
	}
}

// Session is the server-held state behind a session cookie
type Session struct {
	IdentityID int64     `json:"identity_id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Authority manages browser sessions and remember tokens in Redis. Only
// SHA256 hashes of session ids and remember tokens are stored.
type Authority struct {
	client   *redis.Client
	config   Config
	sessions *auth.TokenGenerator
	remember *auth.TokenGenerator
	recorder audit.Recorder
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
}

// Option configures an Authority
type Option func(*Authority)

// WithRecorder sets where security events are reported
func WithRecorder(rec audit.Recorder) Option {
	return func(a *Authority) {
		a.recorder = rec
	}
}

// WithMetrics enables session metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Authority) {
		a.metrics = metrics
	}
}

// WithLogger sets the operational logger
func WithLogger(logger *observability.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority creates a session authority
func NewAuthority(client *redis.Client, config Config, opts ...Option) *Authority {
	defaults := DefaultConfig()
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaults.MaxSessions
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaults.SessionTTL
	}
	if config.RememberTTL <= 0 {
		config.RememberTTL = defaults.RememberTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	a := &Authority{
		client:   client,
		config:   config,
		sessions: auth.NewTokenGenerator("ws_"),
		remember: auth.NewTokenGenerator("wr_"),
		recorder: audit.NopRecorder{},
		logger:   observability.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration
func (a *Authority) Config() Config {
	return a.config
}

func (a *Authority) sessionKey(hash string) string {
	return fmt.Sprintf("%s:session:%s", a.config.KeyPrefix, hash)
}

func (a *Authority) indexKey(identityID int64) string {
	return fmt.Sprintf("%s:sessions:%d", a.config.KeyPrefix, identityID)
}

// CreateSession starts a session for the principal and returns its id.
// When the identity already holds MaxSessions sessions, the oldest ones
// are evicted in the same transaction; the new login always succeeds.
func (a *Authority) CreateSession(ctx context.Context, p auth.Principal) (string, error) {
	id, hash, err := a.sessions.GenerateToken()
	if err != nil {
		return "", err
	}

	now := a.now().UTC()
	data, err := json.Marshal(Session{
		IdentityID: p.ID,
		Email:      p.Email,
		CreatedAt:  now,
		ExpiresAt:  now.Add(a.config.SessionTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	index := a.indexKey(p.ID)
	expiredBefore := strconv.FormatInt(now.Add(-a.config.SessionTTL).UnixNano(), 10)
	keepFrom := int64(-(a.config.MaxSessions + 1))

	var evicted *redis.StringSliceCmd
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.sessionKey(hash), data, a.config.SessionTTL)
		pipe.ZAdd(ctx, index, &redis.Z{Score: float64(now.UnixNano()), Member: hash})
		pipe.ZRemRangeByScore(ctx, index, "-inf", "("+expiredBefore)
		evicted = pipe.ZRange(ctx, index, 0, keepFrom)
		pipe.ZRemRangeByRank(ctx, index, 0, keepFrom)
		pipe.Expire(ctx, index, a.config.SessionTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	a.metrics.RecordSessionCreated()
	if victims := evicted.Val(); len(victims) > 0 {
		keys := make([]string, len(victims))
		for i, h := range victims {
			keys[i] = a.sessionKey(h)
		}
		// the index no longer lists them, so Resolve already rejects these
		if err := a.client.Del(ctx, keys...).Err(); err != nil {
			a.logger.WithError(err).Warn("failed to delete evicted sessions")
		}
		a.metrics.RecordSessionEvicted(len(victims))
		a.logger.WithFields(map[string]interface{}{
			"identity_id": p.ID,
			"evicted":     len(victims),
		}).Info("evicted oldest sessions")
	}

	return id, nil
}

// Resolve returns the live session for an id
func (a *Authority) Resolve(ctx context.Context, sessionID string) (*Session, error) {
	if a.sessions.ValidateTokenFormat(sessionID) != nil {
		return nil, ErrNotFound
	}
	hash := a.sessions.HashToken(sessionID)

	data, err := a.client.Get(ctx, a.sessionKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	// an evicted session may briefly outlive its index entry
	err = a.client.ZScore(ctx, a.indexKey(s.IdentityID), hash).Err()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check session index: %w", err)
	}
	if !a.now().Before(s.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &s, nil
}

// IsValid reports whether the session id resolves to a live session
func (a *Authority) IsValid(ctx context.Context, sessionID string) bool {
	_, err := a.Resolve(ctx, sessionID)
	return err == nil
}

// Invalidate ends a session. Unknown ids are not an error.
func (a *Authority) Invalidate(ctx context.Context, sessionID string) error {
	if a.sessions.ValidateTokenFormat(sessionID) != nil {
		return nil
	}
	hash := a.sessions.HashToken(sessionID)
	key := a.sessionKey(hash)

	data, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return a.client.Del(ctx, key).Err()
	}

	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, a.indexKey(s.IdentityID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// Count returns the number of sessions the identity currently holds
func (a *Authority) Count(ctx context.Context, identityID int64) (int, error) {
	expiredBefore := strconv.FormatInt(a.now().Add(-a.config.SessionTTL).UnixNano(), 10)
	n, err := a.client.ZCount(ctx, a.indexKey(identityID), expiredBefore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(n), nil
}

// RevokeAll ends every session and remember token of an identity and
// returns how many sessions were ended
func (a *Authority) RevokeAll(ctx context.Context, identityID int64) (int, error) {
	index := a.indexKey(identityID)
	rememberIndex := a.rememberIndexKey(identityID)

	hashes, err := a.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	remembered, err := a.client.SMembers(ctx, rememberIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list remember tokens: %w", err)
	}

	keys := make([]string, 0, len(hashes)+len(remembered)+2)
	for _, h := range hashes {
		keys = append(keys, a.sessionKey(h))
	}
	for _, h := range remembered {
		keys = append(keys, a.rememberKey(h))
	}
	keys = append(keys, index, rememberIndex)

	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return len(hashes), nil
}
