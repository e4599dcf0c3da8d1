// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Retry defaults.
const (
	DefaultMaxRetries  = 3
	DefaultRetryBase   = 200 * time.Millisecond
	DefaultRetryCapped = 5 * time.Second
)

// Metrics counts deliveries by transport and outcome.
type Metrics struct {
	Deliveries *prometheus.CounterVec
}

// NewMetrics creates and registers mail metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_mail_deliveries_total",
				Help: "Total number of outbound mail deliveries by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
	}
	reg.MustRegister(m.Deliveries)
	return m
}

// RetryingSender retries a Sender with capped exponential backoff. Validation
// failures are returned immediately.
type RetryingSender struct {
	next       Sender
	transport  string
	maxRetries uint64
	base       time.Duration
	metrics    *Metrics
	logger     *slog.Logger
}

// RetryOption configures a RetryingSender.
type RetryOption func(*RetryingSender)

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(n uint64) RetryOption {
	return func(s *RetryingSender) {
		s.maxRetries = n
	}
}

// WithRetryBase sets the initial backoff.
func WithRetryBase(d time.Duration) RetryOption {
	return func(s *RetryingSender) {
		s.base = d
	}
}

// WithMetrics records delivery outcomes.
func WithMetrics(m *Metrics) RetryOption {
	return func(s *RetryingSender) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for retry attempts.
func WithLogger(l *slog.Logger) RetryOption {
	return func(s *RetryingSender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRetryingSender wraps next. transport labels metrics and logs.
func NewRetryingSender(next Sender, transport string, opts ...RetryOption) *RetryingSender {
	s := &RetryingSender{
		next:       next,
		transport:  transport,
		maxRetries: DefaultMaxRetries,
		base:       DefaultRetryBase,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers msg, retrying transient failures until the retry budget or ctx
// is exhausted.
func (s *RetryingSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		s.record("invalid")
		return err
	}

	backoff := retry.WithCappedDuration(DefaultRetryCapped, retry.NewExponential(s.base))
	backoff = retry.WithMaxRetries(s.maxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.next.Send(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "mail delivery attempt failed",
				"transport", s.transport,
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.record("failed")
		return oops.In("mail").
			With("transport", s.transport).
			With("attempts", attempt).
			Wrap(err)
	}

	s.record("delivered")
	return nil
}

func (s *RetryingSender) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Deliveries.WithLabelValues(s.transport, outcome).Inc()
	}
}
