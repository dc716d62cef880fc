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

// Package pipeline moves one uploaded file through validation, storage, link
// issuance and notification, and reduces whatever happens to one Outcome.
package pipeline

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
	"github.com/fawa-io/filedrop/pkg/notify"
	"github.com/fawa-io/filedrop/pkg/storage"
)

// abortTimeout bounds the cleanup of a failed multipart session. Cleanup
// runs on a context detached from the request so a cancelled request still
// releases its parts.
const abortTimeout = 10 * time.Second

// Store is the object store as seen by the pipeline.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (storage.StoredObject, error)
	Abort(ctx context.Context, key string) error
	Sign(ctx context.Context, key string, validity time.Duration) (string, error)
	Stat(ctx context.Context, key string) (storage.StoredObject, error)
}

// Composer renders a Notification.
type Composer interface {
	Compose(recipient, filename, link string, expiry time.Time) (notify.Notification, error)
}

// Observer receives telemetry. Implementations must be safe for concurrent
// use.
type Observer interface {
	RecordStage(stage string, d time.Duration, err error)
	RecordOutcome(kind string)
	RecordUploadedBytes(n int64)
}

type Config struct {
	MaxBytes     int64
	LinkValidity time.Duration
	// Timeout bounds a whole run, every remote call included.
	Timeout time.Duration
	Prefix  string
}

// Request is one upload. Body is closed by Run when it implements io.Closer.
type Request struct {
	Recipient    string
	Filename     string
	Body         io.Reader
	DeclaredSize int64
}

// ResendRequest reissues a link for an object that is already stored.
type ResendRequest struct {
	Key       string
	Recipient string
	// Filename shown in the message; defaults to the last key segment.
	Filename string
}

type Option func(*Orchestrator)

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock replaces time.Now for issuance and key timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(l fwlog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs the pipeline. It holds only read-only collaborators and
// configuration, so one instance serves any number of concurrent runs.
type Orchestrator struct {
	cfg        Config
	validator  *SizeValidator
	keys       *KeyGenerator
	store      Store
	composer   Composer
	dispatcher notify.Dispatcher
	observer   Observer
	now        func() time.Time
	logger     fwlog.Logger
}

func New(cfg Config, store Store, composer Composer, dispatcher notify.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		validator:  NewSizeValidator(cfg.MaxBytes),
		store:      store,
		composer:   composer,
		dispatcher: dispatcher,
		observer:   nopObserver{},
		now:        time.Now,
		logger:     fwlog.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.keys = NewKeyGenerator(cfg.Prefix, o.now)
	return o
}

// Validator exposes the size check so transports can reject a declared length
// before reading the body.
func (o *Orchestrator) Validator() *SizeValidator { return o.validator }

// Run executes Validating, Uploading, LinkIssuing and Notifying in order and
// returns exactly one Outcome.
//
// A failure before or during the upload aborts any partial multipart session.
// Once the store has confirmed the object it is never deleted: a signing
// failure yields LinkIssuingFailed with the key, and a dispatch failure
// yields NotifyFailed with the issued link.
func (o *Orchestrator) Run(ctx context.Context, req Request) (out Outcome) {
	if c, ok := req.Body.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				o.logger.Debugf("Closing upload body: %v", err)
			}
		}()
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	defer func() { o.finish(out) }()

	log := o.logger.With("filename", req.Filename)

	// Validating
	start := time.Now()
	recipient, body, size, err := o.validate(req)
	o.observer.RecordStage(Validating.String(), time.Since(start), err)
	if err != nil {
		log.Warnf("Rejected upload: %v", err)
		return o.withFilename(failure(Validating, err), req.Filename)
	}
	key, err := o.keys.New(req.Filename)
	if err != nil {
		return o.withFilename(failure(Validating, fault.Wrap(fault.Unknown, "key", err)), req.Filename)
	}
	log = log.With("key", key)

	// Uploading
	log.Debugf("Uploading %d bytes", size)
	start = time.Now()
	obj, err := o.store.Put(ctx, key, body, size)
	if err != nil {
		err = preferGuardError(body, err)
	}
	o.observer.RecordStage(Uploading.String(), time.Since(start), err)
	if err != nil {
		log.Errorf("Upload failed: %v", err)
		o.abort(ctx, key)
		return o.withFilename(failure(Uploading, err), req.Filename)
	}
	o.observer.RecordUploadedBytes(obj.Size)
	log.Debugf("Stored %d bytes, etag %s", obj.Size, obj.ETag)

	return o.issueAndNotify(ctx, log, key, recipient, req.Filename)
}

// Resend issues a fresh link for an existing object and notifies recipient.
// Nothing is uploaded or removed.
func (o *Orchestrator) Resend(ctx context.Context, req ResendRequest) (out Outcome) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	defer func() { o.finish(out) }()

	filename := req.Filename
	if filename == "" {
		filename = path.Base(req.Key)
	}
	log := o.logger.With("key", req.Key, "filename", filename)

	recipient, err := ValidateRecipient(req.Recipient)
	if err == nil && req.Key == "" {
		err = fault.New(fault.InvalidInput, "validate", "object key is required")
	}
	if err != nil {
		return o.withFilename(failure(Validating, err), filename)
	}

	if _, err := o.store.Stat(ctx, req.Key); err != nil {
		log.Errorf("Stat failed: %v", err)
		return o.withFilename(failure(Validating, err), filename)
	}
	return o.issueAndNotify(ctx, log, req.Key, recipient, filename)
}

func (o *Orchestrator) issueAndNotify(ctx context.Context, log fwlog.Logger, key, recipient, filename string) Outcome {
	// LinkIssuing
	start := time.Now()
	issuedAt := o.now()
	url, err := o.store.Sign(ctx, key, o.cfg.LinkValidity)
	o.observer.RecordStage(LinkIssuing.String(), time.Since(start), err)
	if err != nil {
		log.Errorf("Link issuing failed, object kept: %v", err)
		out := failure(LinkIssuing, err)
		out.Kind = fault.LinkIssuingFailed
		out.Key = key
		return o.withFilename(out, filename)
	}
	link := AccessLink{Key: key, URL: url, IssuedAt: issuedAt, Expiry: issuedAt.Add(o.cfg.LinkValidity)}

	// Notifying
	start = time.Now()
	err = o.notify(ctx, recipient, filename, link)
	o.observer.RecordStage(Notifying.String(), time.Since(start), err)
	if err != nil {
		log.Errorf("Notification failed, link still valid until %s: %v", link.Expiry.UTC().Format(time.RFC3339), err)
		out := failure(Notifying, err)
		out.Kind = fault.NotifyFailed
		out.Key = key
		out.Link = &link
		return o.withFilename(out, filename)
	}

	log.Infof("Delivered link to %s, expires %s", recipient, link.Expiry.UTC().Format(time.RFC3339))
	return success(filename, link)
}

func (o *Orchestrator) validate(req Request) (string, io.Reader, int64, error) {
	recipient, err := ValidateRecipient(req.Recipient)
	if err != nil {
		return "", nil, 0, err
	}
	body, size, err := o.validator.Validate(req.DeclaredSize, req.Body)
	if err != nil {
		return "", nil, 0, err
	}
	return recipient, body, size, nil
}

func (o *Orchestrator) notify(ctx context.Context, recipient, filename string, link AccessLink) error {
	n, err := o.composer.Compose(recipient, filename, link.URL, link.Expiry)
	if err != nil {
		return fault.Wrap(fault.Unknown, "compose", err)
	}
	return o.dispatcher.Dispatch(ctx, n)
}

func (o *Orchestrator) abort(ctx context.Context, key string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := o.store.Abort(actx, key); err != nil {
		o.logger.Warnf("Abort of incomplete upload %s failed: %v", key, err)
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

func (o *Orchestrator) withFilename(out Outcome, filename string) Outcome {
	out.Filename = filename
	return out
}

func (o *Orchestrator) finish(out Outcome) {
	o.observer.RecordOutcome(out.MetricLabel())
}

// preferGuardError returns the size guard's verdict when it tripped during
// the upload, whatever the store made of the short read.
func preferGuardError(body io.Reader, err error) error {
	if g, ok := body.(*guardReader); ok && g.Err() != nil {
		return g.Err()
	}
	return err
}

type nopObserver struct{}

func (nopObserver) RecordStage(string, time.Duration, error) {}
func (nopObserver) RecordOutcome(string)                     {}
func (nopObserver) RecordUploadedBytes(int64)                {}
