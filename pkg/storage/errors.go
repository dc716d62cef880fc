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
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	"github.com/fawa-io/filedrop/pkg/fault"
)

// Server-side codes that mean "try again later" even when the status code
// is missing or 4xx.
var transientCodes = map[string]bool{
	"InternalError":              true,
	"ServiceUnavailable":         true,
	"SlowDown":                   true,
	"RequestTimeout":             true,
	"XMinioServerNotInitialized": true,
}

// preclassified returns err unchanged when an earlier layer already gave it
// a kind, e.g. the size guard tripping while the backend was reading.
func preclassified(err error) (error, bool) {
	if fault.KindOf(err) != fault.Unknown {
		return err, true
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Timeout, "", err), true
	}
	return nil, false
}

func classifyStatus(op string, status int, code string, err error) error {
	switch {
	case transientCodes[code]:
		return fault.Wrap(fault.StoreUnavailable, op, err)
	case status >= http.StatusInternalServerError:
		return fault.Wrap(fault.StoreUnavailable, op, err)
	case status == http.StatusTooManyRequests:
		return fault.Wrap(fault.StoreUnavailable, op, err)
	case status >= http.StatusBadRequest, code != "":
		return fault.Wrap(fault.StoreRejected, op, err)
	}
	return nil
}

func classifyMinio(op string, err error) error {
	if out, ok := preclassified(err); ok {
		return out
	}
	if fault.IsTimeout(err) {
		return fault.Wrap(fault.Timeout, op, err)
	}
	resp := minio.ToErrorResponse(err)
	if out := classifyStatus(op, resp.StatusCode, resp.Code, err); out != nil {
		return out
	}
	if fault.IsNetwork(err) {
		return fault.Wrap(fault.StoreUnavailable, op, err)
	}
	return fault.Wrap(fault.Unknown, op, err)
}

func classifyS3(op string, err error) error {
	if out, ok := preclassified(err); ok {
		return out
	}
	if fault.IsTimeout(err) {
		return fault.Wrap(fault.Timeout, op, err)
	}

	status := 0
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		status = withStatus.HTTPStatusCode()
	}
	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	if out := classifyStatus(op, status, code, err); out != nil {
		return out
	}
	if fault.IsNetwork(err) {
		return fault.Wrap(fault.StoreUnavailable, op, err)
	}
	return fault.Wrap(fault.Unknown, op, err)
}

// classifyContext gives a kind to bare context errors surfacing from the
// retry loop.
func classifyContext(op string, err error) error {
	if err == nil {
		return nil
	}
	if fault.KindOf(err) != fault.Unknown {
		return err
	}
	if fault.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Timeout, op, err)
	}
	return fault.Wrap(fault.Unknown, op, err)
}
