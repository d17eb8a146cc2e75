package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendClient is the part of *sendgrid.Client this package uses.
type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer delivers mail through the SendGrid v3 API.
type SendGridMailer struct {
	client sendClient
	from   *mail.Email
}

// NewSendGridMailer creates a mailer that sends as fromAddr.
func NewSendGridMailer(apiKey, fromAddr string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Task Manager", fromAddr),
	}
}

func (m *SendGridMailer) SendWelcome(ctx context.Context, email, name string) error {
	return m.send(ctx, welcomeMessage(email, name))
}

func (m *SendGridMailer) SendGoodbye(ctx context.Context, email, name string) error {
	return m.send(ctx, goodbyeMessage(email, name))
}

func (m *SendGridMailer) send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.Name, msg.To)
	v3 := mail.NewV3MailInit(m.from, msg.Subject, to, mail.NewContent("text/plain", msg.Body))

	resp, err := m.client.SendWithContext(ctx, v3)
	if err != nil {
		return fmt.Errorf("notify: sending %q to %s: %w", msg.Subject, msg.To, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
