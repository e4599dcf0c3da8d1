// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package mail

import (
	"context"

	"github.com/mailersend/mailersend-go"
	"github.com/samber/oops"
)

// mailerSendAPI is the slice of the MailerSend client used here.
type mailerSendAPI interface {
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

// MailerSendSender delivers messages through the MailerSend HTTP API.
type MailerSendSender struct {
	email mailerSendAPI
	from  mailersend.From
	// newMessage builds an empty message; the client's Email service owns the
	// constructor.
	newMessage func() *mailersend.Message
}

// NewMailerSendSender creates a MailerSendSender.
func NewMailerSendSender(apiKey string, from From) (*MailerSendSender, error) {
	if apiKey == "" {
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.mailersend.api_key").Errorf("mailersend api key is required")
	}
	if from.Address == "" {
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.from_address").Errorf("from address is required")
	}

	client := mailersend.NewMailersend(apiKey)
	return &MailerSendSender{
		email:      client.Email,
		from:       mailersend.From{Name: from.Name, Email: from.Address},
		newMessage: client.Email.NewMessage,
	}, nil
}

// Send delivers msg.
func (s *MailerSendSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	m := s.newMessage()
	m.SetFrom(s.from)
	m.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	m.SetSubject(msg.Subject)
	m.SetText(msg.Body)

	if _, err := s.email.Send(ctx, m); err != nil {
		return oops.In("mail").With("transport", TransportMailerSend).Wrap(err)
	}
	return nil
}
