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

// Package notify renders the access-link message and hands it to a mail
// transport.
package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// ExpiryLayout is how expiry instants appear in messages. Always UTC.
const ExpiryLayout = time.RFC1123

const textBody = `Here is the pre-signed URL for your file {{.Filename}}:
{{.Link}}

(note: this URL expires at {{.Expiry}})
`

const htmlBody = `<p>Here is the pre-signed URL: <a href="{{.Link}}">{{.Filename}}</a><br /><br /><em>(note: this URL expires at {{.Expiry}})</em></p>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// Notification is one composed message, built after the link is signed and
// consumed once by a Dispatcher.
type Notification struct {
	Recipient string
	Subject   string
	Text      string
	HTML      string
	Filename  string
	Link      string
	Expiry    time.Time
}

// Composer builds Notifications. It keeps no state besides the subject and
// is safe for concurrent use.
type Composer struct {
	subject string
}

func NewComposer(subject string) *Composer {
	return &Composer{subject: subject}
}

type bodyData struct {
	Filename string
	Link     string
	Expiry   string
}

// Compose renders the plain-text and HTML bodies. The HTML rendering escapes
// filename and link for their context; output is fully determined by the
// arguments.
func (c *Composer) Compose(recipient, filename, link string, expiry time.Time) (Notification, error) {
	data := bodyData{
		Filename: filename,
		Link:     link,
		Expiry:   expiry.UTC().Format(ExpiryLayout),
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Notification{}, err
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Notification{}, err
	}

	return Notification{
		Recipient: strings.TrimSpace(recipient),
		Subject:   c.subject,
		Text:      text.String(),
		HTML:      html.String(),
		Filename:  filename,
		Link:      link,
		Expiry:    expiry,
	}, nil
}
