// Package monitoring forwards errors and panics to an error tracker. The
// process wide monitor is a no-op until Init is called.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// RecoverPanic reports a value recovered from a panic.
	RecoverPanic(v any)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) RecoverPanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil monitor restores the
// no-op one.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and panics again. It must
// be deferred directly: defer monitoring.Recover().
func Recover() {
	if r := recover(); r != nil {
		m := get()
		m.RecoverPanic(r)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) { get().Flush(d) }
