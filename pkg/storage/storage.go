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

// Package storage moves upload streams into durable object storage and
// issues presigned GET links for stored objects. Every error it returns is a
// *fault.Error classified at the point where the remote call failed.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fawa-io/filedrop/pkg/config"
)

// StoredObject describes an object the store has confirmed.
type StoredObject struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store defines the object storage operations the pipeline depends on.
type Store interface {
	// Put streams r to the store under key. size is the exact byte count or
	// -1 when unknown, in which case the backend uploads in bounded parts.
	// r is read forward-only.
	Put(ctx context.Context, key string, r io.Reader, size int64) (StoredObject, error)

	// Abort discards any incomplete multipart session for key.
	Abort(ctx context.Context, key string) error

	// Sign returns a presigned GET URL for key, valid for validity.
	Sign(ctx context.Context, key string, validity time.Duration) (string, error)

	// Stat returns metadata for an existing object.
	Stat(ctx context.Context, key string) (StoredObject, error)
}

// New builds the configured backend and wraps it with transient-failure
// retries.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "minio":
		s, err = NewMinioStore(ctx, cfg)
	case "s3":
		s, err = NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(s, cfg.Retries, nil), nil
}

// countingReader records how many bytes the backend actually consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
