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
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fault"
)

func TestClassifyMinio(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{
			name: "server error",
			err:  minio.ErrorResponse{StatusCode: 500, Code: "InternalError"},
			want: fault.StoreUnavailable,
		},
		{
			name: "slow down without status",
			err:  minio.ErrorResponse{Code: "SlowDown"},
			want: fault.StoreUnavailable,
		},
		{
			name: "access denied",
			err:  minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"},
			want: fault.StoreRejected,
		},
		{
			name: "missing bucket",
			err:  minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"},
			want: fault.StoreRejected,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: fault.Timeout,
		},
		{
			name: "already classified",
			err:  fault.New(fault.OversizedInput, "read", "too big"),
			want: fault.OversizedInput,
		},
		{
			name: "opaque",
			err:  errors.New("boom"),
			want: fault.Unknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyMinio("put", tc.err)
			require.Error(t, got)
			assert.Equal(t, tc.want, fault.KindOf(got))
		})
	}
}

func TestMinioSignIsOffline(t *testing.T) {
	// With the region configured, presigning needs no round trip, so an
	// unreachable endpoint still yields a URL.
	s, err := NewMinioStore(context.Background(), config.StorageConfig{
		Endpoint:  "127.0.0.1:1",
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "drops",
	})
	require.NoError(t, err)

	link, err := s.Sign(context.Background(), "uploads/20250101T000000Z-abcdefghij/report.pdf", 5*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "/drops/uploads/20250101T000000Z-abcdefghij/report.pdf", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
