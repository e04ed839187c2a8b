package email

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
)

type Sender interface {
	// Send delivers a plain-text message; when ics is non-empty it is
	// attached as invite.ics.
	Send(to string, subject string, body string, ics string) error
}

// SMTPSender delivers via unauthenticated SMTP, Mailpit-compatible for
// local development.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@clinicbook.local"
	}
	return &SMTPSender{
		addr: strings.TrimSpace(host) + ":" + strings.TrimSpace(port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string, ics string) error {
	msg := buildMessage(s.from, to, subject, body, ics)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

const attachmentBoundary = "clinicbook-reminder-boundary"

func buildMessage(from, to, subject, body, ics string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n", from, to, subject)

	if ics == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", attachmentBoundary)

	fmt.Fprintf(&b, "--%s\r\n", attachmentBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", attachmentBoundary)
	b.WriteString("Content-Type: text/calendar; method=PUBLISH; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("Content-Disposition: attachment; filename=invite.ics\r\n\r\n")
	b.WriteString(wrap76(base64.StdEncoding.EncodeToString([]byte(ics))))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", attachmentBoundary)
	return b.String()
}

// wrap76 folds base64 output at the 76-column MIME limit.
func wrap76(s string) string {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	return b.String()
}
