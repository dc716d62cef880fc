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

package cors

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS returns the CORS middleware for browser clients of both the form
// endpoint and the connect procedures. With no origins every origin is
// allowed.
func NewCORS(origins ...string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Accept-Post",
			"Content-Type",
			"Content-Encoding",
			"Connect-Accept-Encoding",
			"Connect-Content-Encoding",
			"Connect-Protocol-Version",
			"Connect-Timeout-Ms",
			"X-Request-ID",
			"X-User-Agent",
		},
		ExposedHeaders: []string{
			"Content-Encoding",
			"Connect-Content-Encoding",
			"Grpc-Status",
			"Grpc-Message",
			"X-Request-ID",
			"Filedrop-Kind",
			"Filedrop-Cause",
			"Filedrop-Key",
			"Filedrop-Link",
			"Filedrop-Expires",
		},
		MaxAge: 7200,
	})
}
