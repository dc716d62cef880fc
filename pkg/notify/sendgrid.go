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
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// sendgridSender is the part of *sendgrid.Client the dispatcher uses.
type sendgridSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridDispatcher sends through the SendGrid v3 mail API.
type SendGridDispatcher struct {
	client sendgridSender
	from   Sender
}

func NewSendGridDispatcher(apiKey string, from Sender) *SendGridDispatcher {
	return &SendGridDispatcher{client: sendgrid.NewSendClient(apiKey), from: from}
}

func (d *SendGridDispatcher) Dispatch(ctx context.Context, n Notification) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(d.from.Name, d.from.Address),
		n.Subject,
		mail.NewEmail("", n.Recipient),
		n.Text,
		n.HTML,
	)

	resp, err := d.client.SendWithContext(ctx, msg)
	if err != nil {
		return classifySend(err)
	}
	fwlog.Debugf("SendGrid responded %d for %s", resp.StatusCode, n.Recipient)
	if resp.StatusCode >= http.StatusBadRequest {
		return fault.New(fault.MailTransportError, "dispatch",
			fmt.Sprintf("sendgrid rejected message with status %d: %s", resp.StatusCode, resp.Body))
	}
	return nil
}

func classifySend(err error) error {
	if fault.IsTimeout(err) {
		return fault.Wrap(fault.Timeout, "dispatch", err)
	}
	return fault.Wrap(fault.MailTransportError, "dispatch", err)
}

var _ Dispatcher = (*SendGridDispatcher)(nil)
