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

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
	"github.com/fawa-io/filedrop/pkg/pipeline"
)

// UploadProcedure is the client-streaming upload RPC.
const UploadProcedure = "/filedrop.upload.v1.UploadService/Upload"

// Error metadata carried on failed RPCs.
const (
	kindHeader    = "Filedrop-Kind"
	causeHeader   = "Filedrop-Cause"
	keyHeader     = "Filedrop-Key"
	linkHeader    = "Filedrop-Link"
	expiresHeader = "Filedrop-Expires"
)

// FileInfo must be the first message of an upload stream.
type FileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Email    string `json:"email"`
}

// UploadRequest is one stream message: Info first, then Chunk data.
type UploadRequest struct {
	Info  *FileInfo `json:"info,omitempty"`
	Chunk []byte    `json:"chunk,omitempty"`
}

type UploadResponse struct {
	Status    string    `json:"status"`
	Filename  string    `json:"filename"`
	Key       string    `json:"key"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewConnectHandler returns the procedure path and its handler.
func (h *Handler) NewConnectHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	return UploadProcedure, connect.NewClientStreamHandler(UploadProcedure, h.Upload, opts...)
}

// Upload handles the client-streaming RPC. Chunks are written into a pipe
// that the pipeline reads from, so the file is never held in full.
func (h *Handler) Upload(
	ctx context.Context,
	stream *connect.ClientStream[UploadRequest],
) (*connect.Response[UploadResponse], error) {
	if !stream.Receive() {
		if err := stream.Err(); err != nil {
			return nil, connect.NewError(connect.CodeAborted, err)
		}
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("missing file info message"))
	}
	info := stream.Msg().Info
	if info == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("first message must be file info"))
	}
	log := fwlog.With("procedure", UploadProcedure, "filename", info.Filename)

	recipient, err := pipeline.ValidateRecipient(info.Email)
	if err == nil {
		err = h.limiter.Allow(ctx, recipient)
	}
	if err == nil && info.Size >= 0 {
		err = h.pipeline.Validator().CheckDeclared(info.Size)
	}
	if err != nil {
		return nil, outcomeError(pipeline.Rejected(info.Filename, err))
	}

	pr, pw := io.Pipe()

	var (
		wg  sync.WaitGroup
		out pipeline.Outcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Upload pipeline panicked: %v", r)
				out = pipeline.Outcome{
					Kind:     fault.Unknown,
					Cause:    fault.Unknown,
					Message:  "internal error",
					Filename: info.Filename,
				}
				_ = pr.CloseWithError(fault.New(fault.Unknown, "upload", "pipeline stopped"))
			}
		}()
		out = h.pipeline.Run(ctx, pipeline.Request{
			Recipient:    recipient,
			Filename:     info.Filename,
			Body:         pr,
			DeclaredSize: info.Size,
		})
	}()

	// Stream data from the client to the pipe writer. A write error means
	// the pipeline stopped reading and already has its outcome.
	for stream.Receive() {
		if _, err := pw.Write(stream.Msg().Chunk); err != nil {
			break
		}
	}
	if err := stream.Err(); err != nil {
		log.Warnf("Client stream broke off: %v", err)
		_ = pw.CloseWithError(fault.Wrap(fault.InvalidInput, "receive", err))
	} else {
		_ = pw.Close()
	}
	wg.Wait()

	if !out.OK() {
		return nil, outcomeError(out)
	}
	return connect.NewResponse(&UploadResponse{
		Status:    "success",
		Filename:  out.Filename,
		Key:       out.Link.Key,
		Link:      out.Link.URL,
		ExpiresAt: out.Link.Expiry.UTC(),
	}), nil
}

func outcomeError(out pipeline.Outcome) *connect.Error {
	cerr := connect.NewError(connectCode(out.Kind), errors.New(out.Message))
	cerr.Meta().Set(kindHeader, string(out.Kind))
	if out.Cause != "" && out.Cause != out.Kind {
		cerr.Meta().Set(causeHeader, string(out.Cause))
	}
	if out.Key != "" {
		cerr.Meta().Set(keyHeader, out.Key)
	}
	if out.Link != nil {
		cerr.Meta().Set(linkHeader, out.Link.URL)
		cerr.Meta().Set(expiresHeader, out.Link.Expiry.UTC().Format(time.RFC3339))
	}
	return cerr
}

// RemoteError is a failed upload as seen by a connect client.
type RemoteError struct {
	Kind    fault.Kind
	Cause   fault.Kind
	Message string
	Key     string
	Link    string
	Expires string
}

func (e *RemoteError) Error() string {
	if e.Link != "" {
		return fmt.Sprintf("%s: %s (link %s)", e.Kind, e.Message, e.Link)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ParseRemoteError recovers the outcome kind from a connect error. Errors
// without the metadata are reported as Unknown.
func ParseRemoteError(err error) *RemoteError {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return &RemoteError{Kind: fault.Unknown, Message: err.Error()}
	}
	re := &RemoteError{
		Kind:    fault.Kind(cerr.Meta().Get(kindHeader)),
		Cause:   fault.Kind(cerr.Meta().Get(causeHeader)),
		Message: cerr.Message(),
		Key:     cerr.Meta().Get(keyHeader),
		Link:    cerr.Meta().Get(linkHeader),
		Expires: cerr.Meta().Get(expiresHeader),
	}
	if re.Kind == "" {
		re.Kind = fault.Unknown
	}
	return re
}

// NewUploadClient returns a connect client for UploadProcedure at baseURL.
func NewUploadClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[UploadRequest, UploadResponse] {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return connect.NewClient[UploadRequest, UploadResponse](httpClient, baseURL+UploadProcedure, opts...)
}
