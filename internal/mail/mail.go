// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package mail delivers outbound messages over SMTP, MailerSend, or the log.
package mail

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// Message is a plain-text outbound message.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Validate checks that the message can be addressed and sent.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return oops.In("mail").Errorf("recipient is required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return oops.In("mail").With("to", m.To).Errorf("header fields must not contain line breaks")
	}
	return nil
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Transport names.
const (
	TransportLog        = "log"
	TransportSMTP       = "smtp"
	TransportMailerSend = "mailersend"
)

// From identifies the sending address.
type From struct {
	Name    string
	Address string
}

func (f From) header() string {
	if f.Name == "" {
		return f.Address
	}
	return f.Name + " <" + f.Address + ">"
}
