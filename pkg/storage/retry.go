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

package storage

import (
	"context"
	"io"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// Retrying wraps a Store and retries operations that failed with a
// transient kind. Put is only retried when the input can be rewound; a
// retried Put reuses the same key.
type Retrying struct {
	delegate     Store
	buildBackoff func() backoff.BackOff
}

// NewRetrying creates a store that retries up to retries extra times. A nil
// factory selects exponential backoff starting at 200ms.
func NewRetrying(delegate Store, retries int, factory func() backoff.BackOff) *Retrying {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(b, uint64(max(retries, 0)))
		}
	}
	return &Retrying{delegate: delegate, buildBackoff: factory}
}

func (s *Retrying) Put(ctx context.Context, key string, r io.Reader, size int64) (StoredObject, error) {
	seeker, ok := r.(io.Seeker)
	if !ok {
		return s.delegate.Put(ctx, key, r, size)
	}
	// size counts from the current offset, so retries rewind to it.
	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return s.delegate.Put(ctx, key, r, size)
	}

	var (
		obj     StoredObject
		attempt int
	)
	err = s.retry(ctx, func() error {
		if attempt > 0 {
			if _, err := seeker.Seek(start, io.SeekStart); err != nil {
				return backoff.Permanent(fault.Wrap(fault.InvalidInput, "put", err))
			}
		}
		attempt++

		var err error
		obj, err = s.delegate.Put(ctx, key, r, size)
		if err != nil && fault.KindOf(err).Transient() {
			fwlog.Warnf("Put %s failed on attempt %d: %v", key, attempt, err)
			s.abortQuietly(ctx, key)
		}
		return err
	})
	return obj, err
}

func (s *Retrying) Abort(ctx context.Context, key string) error {
	return s.retry(ctx, func() error { return s.delegate.Abort(ctx, key) })
}

func (s *Retrying) Sign(ctx context.Context, key string, validity time.Duration) (string, error) {
	var link string
	err := s.retry(ctx, func() error {
		var err error
		link, err = s.delegate.Sign(ctx, key, validity)
		return err
	})
	return link, err
}

func (s *Retrying) Stat(ctx context.Context, key string) (StoredObject, error) {
	var obj StoredObject
	err := s.retry(ctx, func() error {
		var err error
		obj, err = s.delegate.Stat(ctx, key)
		return err
	})
	return obj, err
}

// abortQuietly drops the parts of a failed attempt before the next one.
func (s *Retrying) abortQuietly(ctx context.Context, key string) {
	if err := s.delegate.Abort(ctx, key); err != nil {
		fwlog.Debugf("Abort of %s between attempts failed: %v", key, err)
	}
}

func (s *Retrying) retry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(s.buildBackoff(), ctx)
	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !fault.KindOf(err).Transient() {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	return classifyContext("retry", err)
}

var _ Store = (*Retrying)(nil)
