package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		sm := NewShutdownManager(nil, 0)
		if sm.shutdownTimeout != 30*time.Second {
			t.Errorf("Expected 30s default, got %v", sm.shutdownTimeout)
		}
		if sm.logger == nil {
			t.Error("Expected nop logger when nil given")
		}
	})

	t.Run("nil func ignored", func(t *testing.T) {
		sm := NewShutdownManager(nil, time.Second)
		sm.Register("nothing", nil)
		if len(sm.steps) != 0 {
			t.Errorf("Expected no steps, got %d", len(sm.steps))
		}
	})
}

func TestShutdown_RunsStepsInOrder(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	var order []string
	for _, name := range []string{"http", "cron", "audit"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if strings.Join(order, ",") != "http,cron,audit" {
		t.Errorf("Unexpected order %v", order)
	}
}

func TestShutdown_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), time.Second)
	ran := false

	sm.Register("http", func(ctx context.Context) error { return errors.New("listener stuck") })
	sm.Register("audit", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "http: listener stuck") {
		t.Errorf("Expected named error, got %v", err)
	}
	if !ran {
		t.Error("later step should still run")
	}
	if !strings.Contains(buf.String(), "shutdown step failed") {
		t.Errorf("failure should be logged: %s", buf.String())
	}
}

func TestShutdown_SharedDeadline(t *testing.T) {
	sm := NewShutdownManager(nil, 50*time.Millisecond)
	var deadline time.Time
	sm.Register("probe", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})

	start := time.Now()
	sm.Shutdown(context.Background())

	if deadline.IsZero() || deadline.Sub(start) > 100*time.Millisecond {
		t.Errorf("Expected deadline within timeout, got %v", deadline.Sub(start))
	}
}

func TestShutdown_Once(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	calls := 0
	sm.Register("count", func(ctx context.Context) error {
		calls++
		return nil
	})

	sm.Shutdown(context.Background())
	sm.Shutdown(context.Background())

	if calls != 1 {
		t.Errorf("Expected one call, got %d", calls)
	}
}

func TestShutdown_HTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sm := NewShutdownManager(nil, time.Second)
	sm.Register("http", server.Config.Shutdown)

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := http.Get(server.URL); err == nil {
		t.Error("Expected requests to fail after shutdown")
	}
}

func TestWaitForShutdown_ContextDone(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	ran := make(chan struct{})
	sm.Register("step", func(ctx context.Context) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		close(ran)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sm.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown failed: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Error("step did not run with a live context")
	}
}
