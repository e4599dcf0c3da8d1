// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them. It is meant
// for local development, where the reset link is read from the log output.
type LogSender struct {
	from   From
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(from From, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{from: from, logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "outbound mail (log transport)",
		"from", s.from.header(),
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
