package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/audit/audittest"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func failure(t *testing.T, store *audittest.Store, email, ip string, at time.Time) {
	t.Helper()
	e := audit.LoginFailedEvent(email, "bad_credentials", auth.ChannelToken).WithIP(ip)
	e.Timestamp = at
	require.NoError(t, store.Append(context.Background(), e))
}

func newPolicy(store Counter, metrics *observability.Metrics) *Policy {
	return NewPolicy(store, DefaultConfig(), WithClock(func() time.Time { return now }), WithMetrics(metrics))
}

func TestPolicy_EmailThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("four failures still allowed", func(t *testing.T) {
		store := audittest.NewStore()
		for i := 0; i < 4; i++ {
			failure(t, store, "ana@x.com", "10.0.0.1", now.Add(-time.Duration(i)*time.Minute))
		}
		assert.NoError(t, newPolicy(store, nil).Check(ctx, "ana@x.com", "10.0.0.2"))
	})

	t.Run("fifth failure locks the email", func(t *testing.T) {
		store := audittest.NewStore()
		for i := 0; i < 5; i++ {
			// spread across addresses so only the email scope trips
			failure(t, store, "ana@x.com", "10.0.0."+string(rune('1'+i)), now.Add(-time.Duration(i)*time.Minute))
		}
		metrics := observability.NewMetrics(prometheus.NewRegistry())

		err := newPolicy(store, metrics).Check(ctx, "ANA@x.com", "10.0.0.9")
		assert.ErrorIs(t, err, auth.ErrThrottled)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThrottledTotal.WithLabelValues("email")))
	})

	t.Run("failures outside the window age out", func(t *testing.T) {
		store := audittest.NewStore()
		for i := 0; i < 5; i++ {
			failure(t, store, "ana@x.com", "10.0.0.1", now.Add(-61*time.Minute))
		}
		assert.NoError(t, newPolicy(store, nil).Check(ctx, "ana@x.com", "10.0.0.1"))
	})

	t.Run("success does not reset the count", func(t *testing.T) {
		store := audittest.NewStore()
		for i := 0; i < 5; i++ {
			failure(t, store, "ana@x.com", "10.0.0.1", now.Add(-10*time.Minute))
		}
		ok := audit.LoginSuccessEvent(7, "ana@x.com", auth.ChannelToken)
		ok.Timestamp = now.Add(-time.Minute)
		require.NoError(t, store.Append(ctx, ok))

		assert.ErrorIs(t, newPolicy(store, nil).Check(ctx, "ana@x.com", "10.0.0.1"), auth.ErrThrottled)
	})
}

func TestPolicy_IPThresholdIsIndependent(t *testing.T) {
	ctx := context.Background()
	store := audittest.NewStore()

	// one address probing many accounts
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"} {
		failure(t, store, email, "203.0.113.9", now.Add(-5*time.Minute))
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	policy := newPolicy(store, metrics)

	d, err := policy.Evaluate(ctx, "f@x.com", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.EmailFailures)
	assert.Equal(t, int64(5), d.IPFailures)
	assert.Equal(t, "ip", d.Scope)

	assert.ErrorIs(t, policy.Check(ctx, "f@x.com", "203.0.113.9"), auth.ErrThrottled)
	assert.NoError(t, policy.Check(ctx, "f@x.com", "198.51.100.1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThrottledTotal.WithLabelValues("ip")))
}

func TestPolicy_UnknownAndKnownEmailsLookTheSame(t *testing.T) {
	ctx := context.Background()
	store := audittest.NewStore()
	for i := 0; i < 5; i++ {
		failure(t, store, "ghost@x.com", "10.0.0.1", now.Add(-time.Minute))
		failure(t, store, "ana@x.com", "10.0.0.2", now.Add(-time.Minute))
	}
	policy := NewPolicy(store, Config{IPThreshold: 100}, WithClock(func() time.Time { return now }))

	errGhost := policy.Check(ctx, "ghost@x.com", "")
	errAna := policy.Check(ctx, "ana@x.com", "")
	require.Error(t, errGhost)
	require.Error(t, errAna)
	assert.Equal(t, errGhost.Error(), errAna.Error())
}

type failingCounter struct{}

func (failingCounter) Count(context.Context, audit.SearchFilter) (int64, error) {
	return 0, errors.New("database unavailable")
}

func TestPolicy_FailsOpen(t *testing.T) {
	policy := NewPolicy(failingCounter{}, DefaultConfig())

	_, err := policy.Evaluate(context.Background(), "ana@x.com", "10.0.0.1")
	assert.Error(t, err)
	assert.NoError(t, policy.Check(context.Background(), "ana@x.com", "10.0.0.1"))
}
