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

package pipeline

import (
	"encoding/json"
	"time"

	"github.com/fawa-io/filedrop/pkg/fault"
)

// Stage is a state of the upload state machine. A failed run has no stage
// of its own: Outcome.Kind is set and Outcome.Stage is the stage that was
// running.
type Stage int

const (
	Validating Stage = iota
	Uploading
	LinkIssuing
	Notifying
	Done
)

func (s Stage) String() string {
	switch s {
	case Validating:
		return "validating"
	case Uploading:
		return "uploading"
	case LinkIssuing:
		return "link_issuing"
	case Notifying:
		return "notifying"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// AccessLink is a signed URL and the instant it stops working.
type AccessLink struct {
	Key      string    `json:"key"`
	URL      string    `json:"url"`
	IssuedAt time.Time `json:"issuedAt"`
	Expiry   time.Time `json:"expiresAt"`
}

// Outcome is the single terminal result of a pipeline run.
//
// On success Kind is empty and Link is set. On failure Kind names the failure
// and Cause keeps the kind of the underlying error unchanged; they differ
// only for LinkIssuingFailed and NotifyFailed, which also carry the object
// key and, for NotifyFailed, the issued link.
type Outcome struct {
	Kind     fault.Kind
	Cause    fault.Kind
	Message  string
	Filename string
	Key      string
	Link     *AccessLink
	// Stage is Done on success, otherwise the stage that failed.
	Stage Stage
}

func success(filename string, link AccessLink) Outcome {
	return Outcome{Filename: filename, Key: link.Key, Link: &link, Stage: Done}
}

func failure(stage Stage, err error) Outcome {
	kind := fault.KindOf(err)
	return Outcome{Kind: kind, Cause: kind, Message: fault.Message(err), Stage: stage}
}

// Rejected is the outcome for input a transport refuses before starting a
// run, such as an oversized Content-Length or a rate-limited recipient.
func Rejected(filename string, err error) Outcome {
	out := failure(Validating, err)
	out.Filename = filename
	return out
}

// OK reports whether the run ended in Done.
func (o Outcome) OK() bool { return o.Kind == "" }

// Err returns the outcome as a *fault.Error, or nil on success.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return fault.New(o.Kind, o.Stage.String(), o.Message)
}

// MetricLabel is "success" or the failure kind.
func (o Outcome) MetricLabel() string {
	if o.OK() {
		return "success"
	}
	return string(o.Kind)
}

type outcomeJSON struct {
	Status    string     `json:"status"`
	Kind      fault.Kind `json:"kind,omitempty"`
	Cause     fault.Kind `json:"cause,omitempty"`
	Message   string     `json:"message,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	Key       string     `json:"key,omitempty"`
	Link      string     `json:"link,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// MarshalJSON renders {"status":"success","link",...,"filename"} or
// {"status":"error","kind","message",...}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Filename: o.Filename}
	if o.Link != nil {
		out.Link = o.Link.URL
		expiry := o.Link.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	if o.OK() {
		out.Status = "success"
		return json.Marshal(out)
	}
	out.Status = "error"
	out.Kind = o.Kind
	out.Message = o.Message
	if o.Cause != o.Kind {
		out.Cause = o.Cause
	}
	out.Key = o.Key
	return json.Marshal(out)
}
