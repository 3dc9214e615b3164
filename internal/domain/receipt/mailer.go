package receipt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Mailer sends receipts as PDF attachments through Resend.
type Mailer struct {
	client    *resend.Client
	fromEmail string
	logger    *slog.Logger
}

// NewMailer returns a mailer for apiKey. With no key the mailer logs and
// skips every send.
func NewMailer(apiKey, fromEmail string, logger *slog.Logger) *Mailer {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return NewMailerWithClient(client, fromEmail, logger)
}

func NewMailerWithClient(client *resend.Client, fromEmail string, logger *slog.Logger) *Mailer {
	return &Mailer{client: client, fromEmail: fromEmail, logger: logger}
}

// Enabled reports whether sends reach Resend.
func (m *Mailer) Enabled() bool {
	return m.client != nil
}

// Send mails r to the given address with pdf attached and returns the
// message ID. An empty address or an unconfigured client skips the send.
func (m *Mailer) Send(ctx context.Context, to string, r Receipt, pdf []byte) (string, error) {
	to = strings.TrimSpace(to)
	if m.client == nil {
		m.logger.Warn("resend client not configured, skipping receipt email")
		return "", nil
	}
	if to == "" {
		m.logger.Debug("no recipient for receipt email", slog.String("reference", r.Reference))
		return "", nil
	}

	var body bytes.Buffer
	if err := RenderHTML(&body, r); err != nil {
		return "", err
	}

	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{to},
		Subject: fmt.Sprintf("Pedido %s - %s", r.ClientName, r.IssuedAt.Format(dateLayout)),
		Html:    body.String(),
		Attachments: []*resend.Attachment{{
			Content:  pdf,
			Filename: Filename(r),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send receipt email: %w", err)
	}

	m.logger.Info("receipt emailed",
		slog.String("reference", r.Reference),
		slog.String("to", to),
		slog.String("message_id", sent.Id),
	)
	return sent.Id, nil
}
