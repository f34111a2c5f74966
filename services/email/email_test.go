package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/darasa/core"
	logsvc "github.com/trezcool/darasa/services/logger"
)

func TestConsoleService_send(t *testing.T) {
	conf := core.NewTestConfig()
	out := new(bytes.Buffer)
	svc := &consoleService{
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[Darasa] ",
		out:              out,
		logger:           logsvc.NewZapLogger(zap.NewNop()),
	}

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Ada", Address: "ada@test.com"}},
		Cc:      []mail.Address{{Address: "cc@test.com"}},
		Subject: "Welcome",
		BodyStr: "Mbote!",
	}
	require.NoError(t, svc.sendMessage(msg))

	body := out.String()
	assert.Contains(t, body, "Subject: [Darasa] Welcome\r\n")
	assert.Contains(t, body, `To: "Ada" <ada@test.com>`)
	assert.Contains(t, body, "CC: <cc@test.com>")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "Mbote!")

	// no recipients: dropped
	out.Reset()
	require.NoError(t, svc.sendMessage(&core.EmailMessage{Subject: "Nobody", BodyStr: "..."}))
	assert.Empty(t, out.String())
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "a@test.com"}}, Subject: "one", BodyStr: "1"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "2"},
		&core.EmailMessage{To: []mail.Address{{Address: "b@test.com"}}, Subject: "two", BodyStr: "3"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "one", sent[0].Subject)
	last, ok := svc.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "two", last.Subject)

	svc.Reset()
	_, ok = svc.LastMessage()
	assert.False(t, ok)
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewZapLogger(zap.NewNop())).(*sendgridService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@test.com"}},
		Bcc:         []mail.Address{{Address: "bcc@test.com"}},
		Subject:     "Invite",
		TextContent: "join us",
		HTMLContent: "<p>join us</p>",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b"), "list.csv", "text/csv"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "["+conf.AppName+"] Invite", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "ada@test.com", p.To[0].Address)
	require.Len(t, p.BCC, 1)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "list.csv", m.Attachments[0].Filename)
}
