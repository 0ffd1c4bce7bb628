package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/railsched/core/monitoring"
)

// Config defines settings for Sentry error monitoring. An empty DSN disables it.
type Config struct {
	DSN              string  `json:"dsn" yaml:"dsn" koanf:"dsn"`
	Environment      string  `json:"environment" yaml:"environment" koanf:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate" yaml:"traces_sample_rate" koanf:"traces_sample_rate"`
	Release          string  `json:"release" yaml:"release" koanf:"release"`
}

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation.
func NewSentryMonitor(cfg Config) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{}, nil
}

type sentryMonitor struct{}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		sentry.CaptureException(err)
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func (s *sentryMonitor) RecoverPanic(v any) { sentry.CurrentHub().Recover(v) }

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
