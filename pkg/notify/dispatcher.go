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

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// Dispatcher sends one Notification per call. It never retries and never
// swallows a rejection reported by the transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Sender is the From identity of outgoing mail.
type Sender struct {
	Address string
	Name    string
}

// New returns the dispatcher selected by cfg.Transport.
func New(cfg config.MailConfig) (Dispatcher, error) {
	from := Sender{Address: cfg.FromAddress, Name: cfg.FromName}
	switch cfg.Transport {
	case "sendgrid":
		return NewSendGridDispatcher(cfg.SendGridKey, from), nil
	case "smtp":
		return NewSMTPDispatcher(cfg.SMTP, from), nil
	case "log":
		return NewLogDispatcher(fwlog.DefaultLogger()), nil
	default:
		return nil, fmt.Errorf("notify: unknown transport %q", cfg.Transport)
	}
}

// LogDispatcher writes the notification to the log instead of mailing it.
// Useful in development where no mail provider is reachable.
type LogDispatcher struct {
	logger fwlog.Logger
}

func NewLogDispatcher(logger fwlog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return classifySend(err)
	}
	d.logger.With("recipient", n.Recipient, "subject", n.Subject).
		Infof("Notification for %s: %s (expires %s)", n.Filename, n.Link, n.Expiry.UTC().Format(ExpiryLayout))
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
