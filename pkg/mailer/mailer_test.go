package mailer

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"immersion/backend/config"
)

func render(t *testing.T, msg *Message) string {
	t.Helper()
	m, err := Build("no-reply@immersion.local", msg, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestBuild_PlainText(t *testing.T) {
	s := render(t, &Message{
		To:      []string{"pupil@example.org"},
		Subject: "Confirmation d'inscription",
		Body:    "Bonjour",
	})

	assert.Contains(t, s, "pupil@example.org")
	assert.Contains(t, s, "no-reply@immersion.local")
	assert.Contains(t, s, "text/plain")
	assert.NotContains(t, s, "multipart/mixed")
}

func TestBuild_WithAttachment(t *testing.T) {
	s := render(t, &Message{
		To:      []string{"a@example.org", "b@example.org"},
		Subject: "Rappel",
		Body:    "Votre immersion approche",
		Attachments: []Attachment{
			{Filename: "immersion.ics", ContentType: "text/calendar", Content: []byte("BEGIN:VCALENDAR")},
		},
	})

	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, `filename="immersion.ics"`)
	assert.Contains(t, s, "text/calendar")
}

func TestBuild_InvalidRecipient(t *testing.T) {
	_, err := Build("no-reply@immersion.local", &Message{To: []string{"not an address"}}, time.Now())
	assert.Error(t, err)
}

func TestNew_DisabledUsesLogMailer(t *testing.T) {
	m := New(&config.MailConfig{Disabled: true}, zap.NewNop())
	_, ok := m.(*LogMailer)
	require.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), &Message{To: []string{"x@example.org"}}))
}

// 服务器接受连接但从不发送问候，Send 必须在时限内返回
func TestSMTPMailer_SilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m := New(&config.MailConfig{
		SMTPHost: "127.0.0.1",
		SMTPPort: addr.Port,
		From:     "no-reply@immersion.local",
		TLS:      "none",
		Timeout:  300 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	err = m.Send(context.Background(), &Message{To: []string{"pupil@example.org"}, Subject: "x", Body: "y"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m := New(&config.MailConfig{SMTPHost: "127.0.0.1", SMTPPort: 1, From: "no-reply@immersion.local"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, &Message{To: []string{"pupil@example.org"}}), context.Canceled)
}
