// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fault"
)

// SMTPDispatcher delivers multipart/alternative mail over SMTP.
type SMTPDispatcher struct {
	host     string
	port     string
	username string
	password string
	useTLS   bool
	from     Sender
}

func NewSMTPDispatcher(cfg config.SMTPConfig, from Sender) *SMTPDispatcher {
	return &SMTPDispatcher{
		host:     strings.TrimSpace(cfg.Host),
		port:     strings.TrimSpace(cfg.Port),
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		from:     Sender{Address: strings.TrimSpace(from.Address), Name: from.Name},
	}
}

func (d *SMTPDispatcher) Dispatch(ctx context.Context, n Notification) error {
	body, err := buildMIME(d.from, n)
	if err != nil {
		return fault.Wrap(fault.MailTransportError, "dispatch", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(d.host, d.port))
	if err != nil {
		return classifySend(err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, d.host)
	if err != nil {
		return classifySend(err)
	}
	defer c.Close()

	if d.useTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fault.New(fault.MailTransportError, "dispatch", "server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: d.host, MinVersion: tls.VersionTLS12}); err != nil {
			return classifySend(err)
		}
	}
	if d.username != "" || d.password != "" {
		if err := c.Auth(smtp.PlainAuth("", d.username, d.password, d.host)); err != nil {
			return classifySend(err)
		}
	}

	if err := c.Mail(d.from.Address); err != nil {
		return classifySend(err)
	}
	if err := c.Rcpt(n.Recipient); err != nil {
		return classifySend(fmt.Errorf("recipient %s rejected: %w", n.Recipient, err))
	}
	w, err := c.Data()
	if err != nil {
		return classifySend(err)
	}
	if _, err := w.Write(body); err != nil {
		return classifySend(err)
	}
	if err := w.Close(); err != nil {
		return classifySend(err)
	}
	if err := c.Quit(); err != nil {
		return classifySend(err)
	}
	return nil
}

func buildMIME(from Sender, n Notification) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	sender := mail.Address{Name: from.Name, Address: from.Address}
	fmt.Fprintf(&buf, "From: %s\r\n", sender.String())
	fmt.Fprintf(&buf, "To: %s\r\n", (&mail.Address{Address: n.Recipient}).String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", n.Text},
		{"text/html; charset=UTF-8", n.HTML},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ Dispatcher = (*SMTPDispatcher)(nil)
