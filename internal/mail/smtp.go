// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package mail

import (
	"bytes"
	"context"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender delivers messages through an SMTP relay. smtp.SendMail upgrades
// to STARTTLS when the server offers it.
type SMTPSender struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     From
	now      func() time.Time
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig, from From) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.smtp.host").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.smtp.port").Errorf("smtp port %d out of range", cfg.Port)
	}
	if from.Address == "" {
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.from_address").Errorf("from address is required")
	}

	s := &SMTPSender{
		addr:     net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
		host:     host,
		from:     from,
		now:      time.Now,
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s, nil
}

// Send delivers msg. smtp.SendMail has no context support, so cancellation is
// only observed before the dial.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return oops.In("mail").With("transport", TransportSMTP).Wrap(err)
	}

	if err := s.sendMail(s.addr, s.auth, s.from.Address, []string{msg.To}, s.compose(msg)); err != nil {
		return oops.In("mail").
			With("transport", TransportSMTP).
			With("addr", s.addr).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) []byte {
	to := msg.To
	if msg.ToName != "" {
		to = mime.QEncoding.Encode("utf-8", msg.ToName) + " <" + msg.To + ">"
	}

	var b bytes.Buffer
	b.WriteString("From: " + s.from.header() + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + s.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}
