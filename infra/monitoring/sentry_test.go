package monitoring

import (
	"errors"
	"testing"
	"time"

	coremon "github.com/kilianp07/railsched/core/monitoring"
)

func TestNewSentryMonitor(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	if err != nil {
		t.Fatalf("empty dsn: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor got %T", m)
	}

	if _, err := NewSentryMonitor(Config{DSN: "not a dsn"}); err == nil {
		t.Fatal("expected invalid dsn error")
	}

	m, err = NewSentryMonitor(Config{DSN: "https://public@127.0.0.1:1/42", Environment: "test"})
	if err != nil {
		t.Fatalf("valid dsn: %v", err)
	}
	if _, ok := m.(*sentryMonitor); !ok {
		t.Fatalf("expected sentry monitor got %T", m)
	}
	m.CaptureException(errors.New("boom"), map[string]string{"stage": "test"})
	m.CaptureException(nil, nil)
	m.Flush(10 * time.Millisecond)
}
