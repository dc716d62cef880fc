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

// Package fault defines the failure taxonomy shared by every stage of the
// upload pipeline. Remote errors are classified once, where they occur, and
// then travel upward unchanged.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is a machine-distinguishable failure class.
type Kind string

const (
	Unknown            Kind = "Unknown"
	OversizedInput     Kind = "OversizedInput"
	InvalidInput       Kind = "InvalidInput"
	StoreUnavailable   Kind = "StoreUnavailable"
	StoreRejected      Kind = "StoreRejected"
	Timeout            Kind = "Timeout"
	SigningError       Kind = "SigningError"
	MailTransportError Kind = "MailTransportError"
	RateLimited        Kind = "RateLimited"

	// LinkIssuingFailed and NotifyFailed are reported once the object is
	// already durable in the store. The underlying cause keeps its own kind.
	LinkIssuingFailed Kind = "LinkIssuingFailed"
	NotifyFailed      Kind = "NotifyFailed"
)

// Transient reports whether a retry with identical input may succeed.
func (k Kind) Transient() bool {
	return k == StoreUnavailable || k == Timeout
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err as kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Message returns the human-readable part of err without the kind prefix.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Msg != "" {
			return fe.Msg
		}
		if fe.Err != nil {
			return fe.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTimeout reports whether err was caused by a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNetwork reports whether err came from the network layer rather than
// from a remote service response.
func IsNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
