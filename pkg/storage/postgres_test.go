package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withMockOpen routes sql.Open by URL to sqlmock connections
func withMockOpen(t *testing.T, dbs map[string]*sql.DB) {
	t.Helper()
	orig := openFunc
	openFunc = func(driver, url string) (*sql.DB, error) {
		if db, ok := dbs[url]; ok {
			return db, nil
		}
		return nil, errors.New("unknown url")
	}
	t.Cleanup(func() { openFunc = orig })
}

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func testPostgresConfig() PostgresConfig {
	cfg := DefaultPostgresConfig()
	cfg.PrimaryURL = "primary"
	cfg.Timeout = time.Second
	return cfg
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"postgres://a", []string{"postgres://a"}},
		{"postgres://a, postgres://b ,", []string{"postgres://a", "postgres://b"}},
		{" , ", []string{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseReplicaURLs(tt.input), tt.input)
	}
}

func TestNewConnectionManager_PrimaryUnreachable(t *testing.T) {
	primary, mock := newPingMock(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()
	withMockOpen(t, map[string]*sql.DB{"primary": primary})

	cm, err := NewConnectionManager(testPostgresConfig(), nil)
	assert.Error(t, err)
	assert.Nil(t, cm)
}

func TestConnectionManager_ReplicaSelection(t *testing.T) {
	primary, pm := newPingMock(t)
	pm.ExpectPing()
	r1, m1 := newPingMock(t)
	m1.ExpectPing()
	r2, m2 := newPingMock(t)
	m2.ExpectPing().WillReturnError(errors.New("down"))
	m2.ExpectClose()

	withMockOpen(t, map[string]*sql.DB{"primary": primary, "r1": r1, "r2": r2})

	cfg := testPostgresConfig()
	cfg.ReplicaURLs = []string{"r1", "r2"}
	cm, err := NewConnectionManager(cfg, nil)
	require.NoError(t, err)

	assert.Same(t, primary, cm.Primary())
	// the unreachable replica was skipped
	assert.Same(t, r1, cm.Replica())
	assert.Same(t, r1, cm.Replica())
}

func TestConnectionManager_ReplicaFallsBackToPrimary(t *testing.T) {
	primary, pm := newPingMock(t)
	pm.ExpectPing()
	withMockOpen(t, map[string]*sql.DB{"primary": primary})

	cm, err := NewConnectionManager(testPostgresConfig(), nil)
	require.NoError(t, err)
	assert.Same(t, primary, cm.Replica())
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	primary, pm := newPingMock(t)
	pm.ExpectPing()
	replica, rm := newPingMock(t)
	rm.ExpectPing()
	withMockOpen(t, map[string]*sql.DB{"primary": primary, "r1": replica})

	cfg := testPostgresConfig()
	cfg.ReplicaURLs = []string{"r1"}
	cm, err := NewConnectionManager(cfg, nil)
	require.NoError(t, err)

	pm.ExpectPing()
	rm.ExpectPing()
	assert.NoError(t, cm.HealthCheck(context.Background()))

	pm.ExpectPing()
	rm.ExpectPing().WillReturnError(errors.New("down"))
	err = cm.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all replicas unhealthy")

	pm.ExpectPing().WillReturnError(errors.New("down"))
	err = cm.HealthCheck(context.Background())
	assert.Contains(t, err.Error(), "primary unhealthy")
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, pm := newPingMock(t)
	pm.ExpectPing()
	replica, rm := newPingMock(t)
	rm.ExpectPing()
	withMockOpen(t, map[string]*sql.DB{"primary": primary, "r1": replica})

	cfg := testPostgresConfig()
	cfg.ReplicaURLs = []string{"r1"}
	cm, err := NewConnectionManager(cfg, nil)
	require.NoError(t, err)

	rm.ExpectPing().WillReturnError(errors.New("down"))
	rm.ExpectClose()
	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, primary, cm.Replica())

	pm.ExpectClose()
	assert.NoError(t, cm.Close())
}
