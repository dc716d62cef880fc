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

	"github.com/gin-gonic/gin"

	"github.com/fawa-io/filedrop/pkg/cors"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// NewRouter assembles the gin engine: request ids, access logging, the
// upload routes and, when metrics is non-nil, a /metrics endpoint. The
// result is wrapped in the CORS middleware.
func NewRouter(h *Handler, metrics http.Handler, origins ...string) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), AccessLog(fwlog.DefaultLogger()))

	h.Register(engine)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}
	return cors.NewCORS(origins...).Handler(engine)
}
