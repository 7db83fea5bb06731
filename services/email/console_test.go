package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/roster/core"
	logsvc "github.com/trezcool/roster/services/logger"
)

func testConfig(t *testing.T) *core.Config {
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.AppName = "Roster"
	return conf
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(testConfig(t), logsvc.NewNopLogger())

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ahmad Ali", Address: "ahmad@example.com"}},
			Subject:      "Your student account",
			TemplateName: "student_welcome",
			TemplateData: map[string]string{"FullName": "Ahmad Ali", "Email": "ahmad@example.com", "Password": "Xy12abCD90"},
		},
		&core.EmailMessage{To: []mail.Address{{Address: "x@example.com"}}, TemplateName: "nope"},
		&core.EmailMessage{BodyStr: "no recipients"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, "Xy12abCD90")
	assert.Contains(t, sent[0].HTMLContent, "Ahmad Ali")
	assert.Equal(t, "no recipients", sent[1].TextContent)
}

func TestConsoleService_format(t *testing.T) {
	conf := testConfig(t)
	svc := NewConsoleService(conf, logsvc.NewNopLogger()).(*consoleService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Sara Cohen", Address: "sara@example.com"}},
		Cc:          []mail.Address{{Address: "teacher@example.com"}},
		Subject:     "Hello",
		TextContent: "plain",
		HTMLContent: "<p>html</p>",
	}
	body, err := svc.format(msg)
	require.NoError(t, err)

	assert.Contains(t, body, "Subject: [Roster] Hello\r\n")
	assert.Contains(t, body, `To: "Sara Cohen" <sara@example.com>`)
	assert.Contains(t, body, "CC: <teacher@example.com>")
	assert.Contains(t, body, "text/plain; charset=utf-8")
	assert.Contains(t, body, "<p>html</p>")
	assert.True(t, strings.HasPrefix(body, "From: "))
}
