// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/postgres"
	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/logging"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/store"
)

const serviceName = "trailhead"

// loadConfig reads the layered configuration for cmd and installs the default
// logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, nil, err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.SlogLevel())
	return cfg, logger, nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return store.Connect(ctx, store.ConnectConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		Timeout:  cfg.Database.ConnectTimeout,
	}, logger)
}

// openUserStore opens the credential store for the admin commands. The
// returned func releases it. Tests replace it with an in-memory store.
var openUserStore = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserRepository, func(), error) {
	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewUserRepository(pool), pool.Close, nil
}

// newMailSender builds the configured transport. Network transports are
// wrapped in a RetryingSender; metrics may be nil.
func newMailSender(cfg *config.Config, logger *slog.Logger, metrics *mail.Metrics) (mail.Sender, error) {
	from := cfg.MailFrom()

	var sender mail.Sender
	switch cfg.Mail.Transport {
	case mail.TransportSMTP:
		s, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
		}, from)
		if err != nil {
			return nil, err
		}
		sender = s
	case mail.TransportMailerSend:
		s, err := mail.NewMailerSendSender(cfg.Mail.MailerSend.APIKey, from)
		if err != nil {
			return nil, err
		}
		sender = s
	case mail.TransportLog:
		return mail.NewLogSender(from, logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "mail.transport").
			Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}

	return mail.NewRetryingSender(sender, cfg.Mail.Transport,
		mail.WithMaxRetries(cfg.Mail.MaxRetries),
		mail.WithMetrics(metrics),
		mail.WithLogger(logger),
	), nil
}

// newAuth wires the service and gate over users. metrics may be nil.
func newAuth(cfg *config.Config, users auth.UserRepository, sender mail.Sender, logger *slog.Logger, metrics *auth.Metrics) (*auth.Service, *auth.Gate, error) {
	tokens, err := auth.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		return nil, nil, err
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithResetWindow(cfg.Auth.ResetWindow),
		auth.WithResetURLBase(cfg.HTTP.ResetURLBase),
	}
	if metrics != nil {
		opts = append(opts, auth.WithMetrics(metrics))
	}

	svc, err := auth.NewService(users, auth.NewArgon2idHasher(), tokens, sender, opts...)
	if err != nil {
		return nil, nil, oops.With("operation", "create auth service").Wrap(err)
	}
	gate, err := auth.NewGate(users, tokens, opts...)
	if err != nil {
		return nil, nil, oops.With("operation", "create auth gate").Wrap(err)
	}
	return svc, gate, nil
}

// adminService opens the store and builds a service for the admin commands.
// Mail goes to the log transport: admin commands never send resets.
func adminService(cmd *cobra.Command) (*auth.Service, func(), error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	users, closeStore, err := openUserStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, _, err := newAuth(cfg, users, mail.NewLogSender(cfg.MailFrom(), logger), logger, nil)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}
