// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package config loads Trailhead configuration from compiled defaults, a YAML
// file, a .env file, TRAILHEAD_* environment variables and command-line flags,
// in that order of precedence (later wins).
package config

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/mail"
)

// Config is the complete runtime configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Mail     MailConfig     `koanf:"mail"`
}

// LogConfig selects the log format and minimum level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig locates PostgreSQL.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// AuthConfig configures tokens, reset links and the session cookie.
type AuthConfig struct {
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	ResetWindow  time.Duration `koanf:"reset_window"`
	Issuer       string        `koanf:"issuer"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// HTTPConfig configures the JSON API listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	// ResetURLBase is the public URL that reset secrets are appended to.
	ResetURLBase string `koanf:"reset_url_base"`
}

// GRPCConfig configures the optional gRPC listener. An empty Addr disables it.
// Setting both TLS files serves TLS; setting one is an error.
type GRPCConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Transport   string           `koanf:"transport"`
	FromName    string           `koanf:"from_name"`
	FromAddress string           `koanf:"from_address"`
	MaxRetries  uint64           `koanf:"max_retries"`
	SMTP        SMTPConfig       `koanf:"smtp"`
	MailerSend  MailerSendConfig `koanf:"mailersend"`
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// MailerSendConfig configures the MailerSend transport.
type MailerSendConfig struct {
	APIKey string `koanf:"api_key"`
}

// Defaults returns the compiled-in configuration as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"log.format":               "json",
		"log.level":                "info",
		"database.url":             "",
		"database.max_conns":       int32(10),
		"database.connect_timeout": 30 * time.Second,
		"auth.jwt_secret":          "",
		"auth.token_ttl":           90 * 24 * time.Hour,
		"auth.reset_window":        auth.DefaultResetWindow,
		"auth.issuer":              "trailhead",
		"auth.cookie_secure":       false,
		"http.addr":                ":8080",
		"http.allowed_origins":     []string{},
		"http.reset_url_base":      "http://localhost:8080/api/v1/users/resetpassword",
		"grpc.addr":                "",
		"grpc.tls_cert_file":       "",
		"grpc.tls_key_file":        "",
		"metrics.addr":             ":9100",
		"mail.transport":           mail.TransportLog,
		"mail.from_name":           "Trailhead",
		"mail.from_address":        "no-reply@trailhead.local",
		"mail.max_retries":         uint64(mail.DefaultMaxRetries),
		"mail.smtp.host":           "",
		"mail.smtp.port":           587,
		"mail.smtp.username":       "",
		"mail.smtp.password":       "",
		"mail.mailersend.api_key":  "",
	}
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks the configuration. It does not require the database URL,
// which only commands that touch the database need; see RequireDatabase.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "max connections must not be negative")
	}
	if err := c.TokenConfig().Validate(); err != nil {
		return err
	}
	if c.Auth.ResetWindow <= 0 {
		return invalid("auth.reset_window", "reset window must be positive")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	u, err := url.Parse(c.HTTP.ResetURLBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("http.reset_url_base", "reset url base must be an absolute url")
	}
	for _, origin := range c.HTTP.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return invalid("http.allowed_origins", "allowed origins must not contain empty entries")
		}
	}
	if (c.GRPC.TLSCertFile == "") != (c.GRPC.TLSKeyFile == "") {
		return invalid("grpc.tls_cert_file", "grpc tls needs both a certificate and a key file")
	}
	return c.Mail.validate()
}

func (m MailConfig) validate() error {
	switch m.Transport {
	case mail.TransportLog:
	case mail.TransportSMTP:
		if m.SMTP.Host == "" {
			return invalid("mail.smtp.host", "smtp host is required for the smtp transport")
		}
		if m.SMTP.Port <= 0 || m.SMTP.Port > 65535 {
			return invalid("mail.smtp.port", "smtp port %d out of range", m.SMTP.Port)
		}
	case mail.TransportMailerSend:
		if m.MailerSend.APIKey == "" {
			return invalid("mail.mailersend.api_key", "api key is required for the mailersend transport")
		}
	default:
		return invalid("mail.transport", "unknown mail transport %q", m.Transport)
	}
	if m.FromAddress == "" {
		return invalid("mail.from_address", "from address is required")
	}
	return nil
}

// RequireDatabase reports a CONFIG_INVALID error when no database URL is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	return nil
}

// TokenConfig derives the token signing configuration.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.Auth.JWTSecret),
		TTL:    c.Auth.TokenTTL,
		Issuer: c.Auth.Issuer,
	}
}

// SlogLevel returns the configured level. Validate guarantees it parses.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Log.Level))
	return level
}

// MailFrom returns the configured sender identity.
func (c *Config) MailFrom() mail.From {
	return mail.From{Name: c.Mail.FromName, Address: c.Mail.FromAddress}
}
