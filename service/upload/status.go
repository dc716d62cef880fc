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
	"net/http"

	"connectrpc.com/connect"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/pipeline"
)

// httpStatus maps an outcome kind to the form endpoint's status code.
func httpStatus(out pipeline.Outcome) int {
	if out.OK() {
		return http.StatusOK
	}
	switch out.Kind {
	case fault.OversizedInput:
		return http.StatusRequestEntityTooLarge
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.RateLimited:
		return http.StatusTooManyRequests
	case fault.Timeout:
		return http.StatusGatewayTimeout
	case fault.StoreUnavailable, fault.StoreRejected, fault.SigningError, fault.MailTransportError,
		fault.LinkIssuingFailed, fault.NotifyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func connectCode(kind fault.Kind) connect.Code {
	switch kind {
	case fault.OversizedInput, fault.RateLimited:
		return connect.CodeResourceExhausted
	case fault.InvalidInput:
		return connect.CodeInvalidArgument
	case fault.Timeout:
		return connect.CodeDeadlineExceeded
	case fault.StoreUnavailable:
		return connect.CodeUnavailable
	case fault.StoreRejected:
		return connect.CodeFailedPrecondition
	case fault.SigningError, fault.MailTransportError, fault.LinkIssuingFailed, fault.NotifyFailed:
		return connect.CodeInternal
	default:
		return connect.CodeUnknown
	}
}
