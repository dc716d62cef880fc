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
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/pipeline"
	"github.com/fawa-io/filedrop/pkg/ratelimit"
)

const (
	// FormOverhead is the multipart framing allowed on top of the size
	// ceiling when checking Content-Length.
	FormOverhead = 64 << 10

	maxEmailField = 1 << 10
)

// Pipeline is the orchestration the transports drive.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
	Validator() *pipeline.SizeValidator
}

// Handler serves the upload form endpoint and the connect procedure.
type Handler struct {
	pipeline Pipeline
	limiter  ratelimit.Limiter
}

func NewHandler(p Pipeline, limiter ratelimit.Limiter) *Handler {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Handler{pipeline: p, limiter: limiter}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/v1/upload", h.UploadForm)

	procedure, rpc := h.NewConnectHandler()
	r.POST(procedure, gin.WrapH(rpc))
}

// UploadForm handles a multipart/form-data POST with an "email" field
// followed by a "file" part. The file part is streamed into the pipeline
// as it arrives; nothing is written to local disk.
func (h *Handler) UploadForm(c *gin.Context) {
	log := requestLogger(c)
	validator := h.pipeline.Validator()

	if cl := c.Request.ContentLength; cl > 0 {
		if err := validator.CheckDeclared(cl - FormOverhead); err != nil {
			h.respond(c, pipeline.Rejected("", err))
			return
		}
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, validator.Max()+FormOverhead)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		h.respond(c, pipeline.Rejected("", fault.New(fault.InvalidInput, "form", "expected a multipart/form-data body")))
		return
	}

	var email string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			h.respond(c, pipeline.Rejected("", fault.New(fault.InvalidInput, "form", "file is required")))
			return
		}
		if err != nil {
			h.respond(c, pipeline.Rejected("", classifyBodyError(err)))
			return
		}

		switch part.FormName() {
		case "email":
			email, err = readField(part)
			if err != nil {
				h.respond(c, pipeline.Rejected("", err))
				return
			}
		case "file":
			out := h.runPart(c.Request.Context(), email, part)
			if !out.OK() {
				log.Warnf("Upload of %q ended with %s: %s", out.Filename, out.Kind, out.Message)
			}
			h.respond(c, out)
			return
		default:
			_ = part.Close()
		}
	}
}

func (h *Handler) runPart(ctx context.Context, email string, part *multipart.Part) pipeline.Outcome {
	filename := part.FileName()
	if email == "" {
		_ = part.Close()
		return pipeline.Rejected(filename, fault.New(fault.InvalidInput, "form", "the email field must precede the file"))
	}
	recipient, err := pipeline.ValidateRecipient(email)
	if err != nil {
		_ = part.Close()
		return pipeline.Rejected(filename, err)
	}
	if err := h.limiter.Allow(ctx, recipient); err != nil {
		_ = part.Close()
		return pipeline.Rejected(filename, err)
	}

	declared := int64(-1)
	if v := part.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			declared = n
		}
	}
	return h.pipeline.Run(ctx, pipeline.Request{
		Recipient:    recipient,
		Filename:     filename,
		Body:         &bodyPart{Part: part},
		DeclaredSize: declared,
	})
}

// bodyPart maps the request size cap to OversizedInput.
type bodyPart struct {
	*multipart.Part
}

func (b *bodyPart) Read(p []byte) (int, error) {
	n, err := b.Part.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = classifyBodyError(err)
	}
	return n, err
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxEmailField+1))
	if err != nil {
		return "", classifyBodyError(err)
	}
	if len(b) > maxEmailField {
		return "", fault.New(fault.InvalidInput, "form", fmt.Sprintf("field %q is too long", part.FormName()))
	}
	return string(b), nil
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fault.New(fault.OversizedInput, "form", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	if fault.KindOf(err) != fault.Unknown {
		return err
	}
	return fault.Wrap(fault.InvalidInput, "form", err)
}

func (h *Handler) respond(c *gin.Context, out pipeline.Outcome) {
	c.JSON(httpStatus(out), out)
}
