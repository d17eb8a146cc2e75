package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSendClient struct {
	resp *rest.Response
	err  error
	got  []*mail.SGMailV3
}

func (f *fakeSendClient) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = append(f.got, m)
	return f.resp, f.err
}

func TestSendGridMailer_Welcome(t *testing.T) {
	client := &fakeSendClient{resp: &rest.Response{StatusCode: 202}}
	m := &SendGridMailer{client: client, from: mail.NewEmail("Task Manager", "noreply@example.com")}

	require.NoError(t, m.SendWelcome(context.Background(), "dakota@example.com", "Dakota"))

	require.Len(t, client.got, 1)
	sent := client.got[0]
	assert.Equal(t, "Welcome to Task Manager App!", sent.Subject)
	assert.Equal(t, "noreply@example.com", sent.From.Address)
	require.Len(t, sent.Personalizations, 1)
	assert.Equal(t, "dakota@example.com", sent.Personalizations[0].To[0].Address)
	require.Len(t, sent.Content, 1)
	assert.Equal(t, "text/plain", sent.Content[0].Type)
	assert.Equal(t, "Welcome Dakota. I hope you enjoy using the task manager app.", sent.Content[0].Value)
}

func TestSendGridMailer_Goodbye(t *testing.T) {
	client := &fakeSendClient{resp: &rest.Response{StatusCode: 202}}
	m := &SendGridMailer{client: client, from: mail.NewEmail("Task Manager", "noreply@example.com")}

	require.NoError(t, m.SendGoodbye(context.Background(), "dakota@example.com", "Dakota"))

	require.Len(t, client.got, 1)
	assert.Equal(t, "Sorry to see you leave!", client.got[0].Subject)
	assert.Equal(t, "Goodbye, Dakota. I hope you found the task manager app useful.", client.got[0].Content[0].Value)
}

func TestSendGridMailer_Errors(t *testing.T) {
	from := mail.NewEmail("Task Manager", "noreply@example.com")

	t.Run("transport error", func(t *testing.T) {
		m := &SendGridMailer{client: &fakeSendClient{err: errors.New("dial tcp: refused")}, from: from}
		assert.Error(t, m.SendWelcome(context.Background(), "a@example.com", "A"))
	})

	t.Run("non-2xx status", func(t *testing.T) {
		client := &fakeSendClient{resp: &rest.Response{StatusCode: 401, Body: "bad key"}}
		m := &SendGridMailer{client: client, from: from}
		err := m.SendWelcome(context.Background(), "a@example.com", "A")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.SendWelcome(context.Background(), "dakota@example.com", "Dakota"))
	assert.Contains(t, buf.String(), "dakota@example.com")
	assert.Contains(t, buf.String(), "Welcome to Task Manager App!")
}

// recordingMailer records calls and returns err from every send.
type recordingMailer struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (r *recordingMailer) SendWelcome(ctx context.Context, email, _ string) error {
	return r.record(ctx, "welcome:"+email)
}

func (r *recordingMailer) SendGoodbye(ctx context.Context, email, _ string) error {
	return r.record(ctx, "goodbye:"+email)
}

func (r *recordingMailer) record(ctx context.Context, call string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.err
}

func TestAsync_DeliversAfterCallerCancels(t *testing.T) {
	next := &recordingMailer{delay: 20 * time.Millisecond}
	a := NewAsync(next, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.SendWelcome(ctx, "a@example.com", "A"))
	require.NoError(t, a.SendGoodbye(ctx, "b@example.com", "B"))
	cancel()

	a.Close()

	assert.ElementsMatch(t, []string{"welcome:a@example.com", "goodbye:b@example.com"}, next.calls)
}

func TestAsync_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	next := &recordingMailer{err: errors.New("provider down")}
	a := NewAsync(next, slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NoError(t, a.SendWelcome(context.Background(), "a@example.com", "A"))
	a.Close()

	assert.Contains(t, buf.String(), "email delivery failed")
	assert.Contains(t, buf.String(), "provider down")
}
