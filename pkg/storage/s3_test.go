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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/filedrop/pkg/fault"
)

type fakeS3 struct {
	mu       sync.Mutex
	status   int
	requests []string
	bodies   [][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.bodies = append(f.bodies, body)
	status := f.status
	f.mu.Unlock()

	if status >= 400 {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		code := "AccessDenied"
		if status >= 500 {
			code = "ServiceUnavailable"
		}
		_, _ = io.WriteString(w, "<Error><Code>"+code+"</Code><Message>nope</Message></Error>")
		return
	}

	switch {
	case r.Method == http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Has("uploads"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListMultipartUploadsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Bucket>drops</Bucket>
  <Upload><Key>uploads/k/a.bin</Key><UploadId>u-1</UploadId></Upload>
  <Upload><Key>uploads/k/a.bin.other</Key><UploadId>u-2</UploadId></Upload>
</ListMultipartUploadsResult>`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestS3Store(t *testing.T, fake *fakeS3) *S3Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		Retryer:      aws.NopRetryer{},
		HTTPClient:   srv.Client(),
	})
	s := newS3Store(client, "drops", 5<<20)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestS3PutSeekable(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3Store(t, fake)

	obj, err := s.Put(context.Background(), "uploads/k/a.bin", bytes.NewReader([]byte("hello")), 5)
	require.NoError(t, err)
	assert.Equal(t, "uploads/k/a.bin", obj.Key)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", obj.ETag)

	reqs := fake.seen()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0], "PUT /drops/uploads/k/a.bin"))
}

func TestS3PutStreamCountsBytes(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3Store(t, fake)

	obj, err := s.Put(context.Background(), "uploads/k/a.bin", io.MultiReader(strings.NewReader("streamed")), -1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), obj.Size)
}

func TestS3PutClassifiesFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		want   fault.Kind
	}{
		{name: "forbidden", status: http.StatusForbidden, want: fault.StoreRejected},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: fault.StoreUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestS3Store(t, &fakeS3{status: tc.status})
			_, err := s.Put(context.Background(), "k", bytes.NewReader([]byte("x")), 1)
			require.Error(t, err)
			assert.Equal(t, tc.want, fault.KindOf(err))
		})
	}
}

func TestS3AbortOnlyMatchingKey(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3Store(t, fake)

	require.NoError(t, s.Abort(context.Background(), "uploads/k/a.bin"))

	reqs := fake.seen()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasPrefix(reqs[0], "GET /drops"))
	assert.Contains(t, reqs[1], "DELETE /drops/uploads/k/a.bin?")
	assert.Contains(t, reqs[1], "uploadId=u-1")
}

func TestS3SignUsesValidity(t *testing.T) {
	s := newTestS3Store(t, &fakeS3{})

	link, err := s.Sign(context.Background(), "uploads/k/a.bin", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/drops/uploads/k/a.bin", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://s3.local", endpointURL("s3.local", true))
	assert.Equal(t, "http://s3.local:9000", endpointURL("s3.local:9000", false))
	assert.Equal(t, "http://already", endpointURL("http://already", true))
}
