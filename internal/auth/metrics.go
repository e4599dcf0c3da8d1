// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts authentication outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Authentications *prometheus.CounterVec
	PasswordResets  *prometheus.CounterVec
	Signups         *prometheus.CounterVec
}

// NewMetrics creates and registers auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_auth_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_auth_authentications_total",
				Help: "Total number of bearer token authentications by result",
			},
			[]string{"result"},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_auth_password_resets_total",
				Help: "Total number of password reset operations by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		Signups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_auth_signups_total",
				Help: "Total number of signups by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.Logins, m.Authentications, m.PasswordResets, m.Signups)
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) authentication(result string) {
	if m != nil {
		m.Authentications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) reset(stage, outcome string) {
	if m != nil {
		m.PasswordResets.WithLabelValues(stage, outcome).Inc()
	}
}

func (m *Metrics) signup(outcome string) {
	if m != nil {
		m.Signups.WithLabelValues(outcome).Inc()
	}
}
