package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
)

// rememberRecord is the stored state of a remember token. A rotated token
// is kept with Used set until it would have expired, so a replay can be
// told apart from an unknown token.
type rememberRecord struct {
	IdentityID int64     `json:"identity_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Role       auth.Role `json:"role,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Used       bool      `json:"used,omitempty"`
}

// Resumed is the outcome of a successful remember-token login
type Resumed struct {
	Principal     auth.Principal
	SessionID     string
	RememberToken string
}

func (a *Authority) rememberKey(hash string) string {
	return fmt.Sprintf("%s:remember:%s", a.config.KeyPrefix, hash)
}

func (a *Authority) rememberIndexKey(identityID int64) string {
	return fmt.Sprintf("%s:remembers:%d", a.config.KeyPrefix, identityID)
}

// IssueRemember creates a remember token for the principal
func (a *Authority) IssueRemember(ctx context.Context, p auth.Principal) (string, error) {
	token, hash, err := a.remember.GenerateToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(rememberRecord{
		IdentityID: p.ID,
		Email:      p.Email,
		Name:       p.Name,
		Role:       p.Role,
		ExpiresAt:  a.now().UTC().Add(a.config.RememberTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode remember token: %w", err)
	}

	index := a.rememberIndexKey(p.ID)
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.rememberKey(hash), data, a.config.RememberTTL)
		pipe.SAdd(ctx, index, hash)
		pipe.Expire(ctx, index, a.config.RememberTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store remember token: %w", err)
	}
	return token, nil
}

// ResumeFromRemember consumes a remember token and starts a new session,
// issuing a replacement token. The consumed token stays on record as used.
// Presenting a used token revokes every session of its identity, reports
// SUSPICIOUS_ACTIVITY and returns ErrRememberReused.
func (a *Authority) ResumeFromRemember(ctx context.Context, token, ip string) (*Resumed, error) {
	if a.remember.ValidateTokenFormat(token) != nil {
		return nil, ErrRememberInvalid
	}
	hash := a.remember.HashToken(token)
	key := a.rememberKey(hash)

	var record rememberRecord
	reused := false
	err := a.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to decode remember token: %w", err)
		}
		if record.Used {
			reused = true
			return nil
		}

		record.Used = true
		marked, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, marked, redis.KeepTTL)
			pipe.SRem(ctx, a.rememberIndexKey(record.IdentityID), hash)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrRememberInvalid
	case errors.Is(err, redis.TxFailedErr):
		// a concurrent request consumed it first
		reused = true
	case err != nil:
		return nil, fmt.Errorf("failed to consume remember token: %w", err)
	}

	if reused {
		a.handleReuse(ctx, record, ip)
		return nil, ErrRememberReused
	}
	if !a.now().Before(record.ExpiresAt) {
		return nil, ErrRememberInvalid
	}

	principal := auth.Principal{
		ID:    record.IdentityID,
		Email: record.Email,
		Name:  record.Name,
		Role:  record.Role,
	}
	sessionID, err := a.CreateSession(ctx, principal)
	if err != nil {
		return nil, err
	}
	replacement, err := a.IssueRemember(ctx, principal)
	if err != nil {
		return nil, err
	}

	return &Resumed{Principal: principal, SessionID: sessionID, RememberToken: replacement}, nil
}

func (a *Authority) handleReuse(ctx context.Context, record rememberRecord, ip string) {
	a.metrics.RecordRememberReuse()

	revoked := 0
	if record.IdentityID != 0 {
		n, err := a.RevokeAll(ctx, record.IdentityID)
		if err != nil {
			a.logger.WithError(err).Error("failed to revoke sessions after remember token reuse")
		}
		revoked = n
	}

	a.logger.WithFields(map[string]interface{}{
		"identity_id": record.IdentityID,
		"ip_address":  ip,
	}).Warn("remember token reuse detected")

	a.recorder.Record(ctx, audit.SecurityEvent(audit.EventTypeSuspiciousActivity, record.Email,
		"Remember-me token reused").
		WithIP(ip).
		WithDetail("reason", "remember_token_reuse").
		WithDetail("sessions_revoked", revoked))
}

// RevokeRemember deletes a remember token. Unknown tokens are not an error.
func (a *Authority) RevokeRemember(ctx context.Context, token string) error {
	if a.remember.ValidateTokenFormat(token) != nil {
		return nil
	}
	hash := a.remember.HashToken(token)
	key := a.rememberKey(hash)

	data, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get remember token: %w", err)
	}

	var record rememberRecord
	_ = json.Unmarshal(data, &record)

	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, a.rememberIndexKey(record.IdentityID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke remember token: %w", err)
	}
	return nil
}
