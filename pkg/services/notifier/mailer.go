/*
2019 © Postgres.ai
*/

package notifier

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/config"
)

const senderName = "Chegar Primeiro"

// Message describes an outgoing e-mail.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer defines the interface for e-mail delivery.
type Mailer interface {
	// Send makes a single delivery attempt.
	Send(msg Message) error
}

// SMTPMailer delivers e-mails through an SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer creates a new SMTP mailer.
func NewSMTPMailer(cfg config.Mail) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)),
		auth: smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host),
		from: from,
	}
}

// Send sends the message.
func (m *SMTPMailer) Send(msg Message) error {
	body, err := compose(fmt.Sprintf("%s <%s>", senderName, m.from), msg)
	if err != nil {
		return err
	}

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, body); err != nil {
		return errors.Wrap(err, "failed to send e-mail")
	}

	return nil
}

// compose builds a multipart/alternative message with text and HTML parts.
func compose(from string, msg Message) ([]byte, error) {
	var (
		parts bytes.Buffer
		out   bytes.Buffer
	)

	w := multipart.NewWriter(&parts)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{contentType: "text/plain; charset=UTF-8", content: msg.Text},
		{contentType: "text/html; charset=UTF-8", content: msg.HTML},
	} {
		if part.content == "" {
			continue
		}

		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create message part")
		}

		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, errors.Wrap(err, "failed to write message part")
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close message")
	}

	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", w.Boundary())
	out.Write(parts.Bytes())

	return out.Bytes(), nil
}

// LogMailer only logs messages. It is used when SMTP is not configured.
type LogMailer struct{}

// Send logs the recipient and subject.
func (LogMailer) Send(msg Message) error {
	log.Msg(fmt.Sprintf("Mail is not configured, skipping %q to %s", msg.Subject, msg.To))
	return nil
}
