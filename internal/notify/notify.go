// Package notify sends the transactional account emails.
//
// Delivery is best-effort: callers wrap a Mailer in Async, which sends in
// the background and only logs failures, so account flows never fail
// because email did.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	SendWelcome(ctx context.Context, email, name string) error
	SendGoodbye(ctx context.Context, email, name string) error
}

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Name    string
	Subject string
	Body    string
}

func welcomeMessage(email, name string) Message {
	return Message{
		To:      email,
		Name:    name,
		Subject: "Welcome to Task Manager App!",
		Body:    fmt.Sprintf("Welcome %s. I hope you enjoy using the task manager app.", name),
	}
}

func goodbyeMessage(email, name string) Message {
	return Message{
		To:      email,
		Name:    name,
		Subject: "Sorry to see you leave!",
		Body:    fmt.Sprintf("Goodbye, %s. I hope you found the task manager app useful.", name),
	}
}

// LogMailer writes messages to the log instead of sending them. It is used
// when no email API key is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendWelcome(ctx context.Context, email, name string) error {
	m.log(ctx, welcomeMessage(email, name))
	return nil
}

func (m *LogMailer) SendGoodbye(ctx context.Context, email, name string) error {
	m.log(ctx, goodbyeMessage(email, name))
	return nil
}

func (m *LogMailer) log(ctx context.Context, msg Message) {
	m.logger.InfoContext(ctx, "email not sent (no provider configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
}
