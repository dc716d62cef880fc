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
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/fawa-io/filedrop/pkg/fault"
)

// MaxRecipientLength bounds the recipient address, counted in bytes after
// trimming.
const MaxRecipientLength = 50

// SizeValidator rejects input above a byte ceiling before anything is sent
// to the store.
type SizeValidator struct {
	max int64
}

func NewSizeValidator(max int64) *SizeValidator {
	return &SizeValidator{max: max}
}

// Max returns the ceiling in bytes.
func (v *SizeValidator) Max() int64 { return v.max }

// CheckDeclared rejects a caller-declared length above the ceiling. A
// negative length means unknown and passes.
func (v *SizeValidator) CheckDeclared(declared int64) error {
	if declared > v.max {
		return v.oversized(declared)
	}
	return nil
}

// Validate checks content against the ceiling and returns the reader and
// size to hand to the store.
//
// Seekable content is measured directly, so the declared length is only
// cross-checked, never trusted. Anything else is wrapped in a guard that
// fails the read once the ceiling is crossed or when the stream ends at a
// length other than the declared one; its size is reported as -1.
func (v *SizeValidator) Validate(declared int64, content io.Reader) (io.Reader, int64, error) {
	if content == nil {
		return nil, 0, fault.New(fault.InvalidInput, "validate", "no file content")
	}
	if err := v.CheckDeclared(declared); err != nil {
		return nil, 0, err
	}

	if s, ok := content.(io.Seeker); ok {
		actual, err := remaining(s)
		if err != nil {
			return nil, 0, fault.Wrap(fault.InvalidInput, "validate", err)
		}
		if actual > v.max {
			return nil, 0, v.oversized(actual)
		}
		if declared >= 0 && declared != actual {
			return nil, 0, fault.New(fault.InvalidInput, "validate",
				fmt.Sprintf("declared length %d does not match actual length %d", declared, actual))
		}
		if actual == 0 {
			return nil, 0, fault.New(fault.InvalidInput, "validate", "file is empty")
		}
		return content, actual, nil
	}

	return &guardReader{r: content, max: v.max, declared: declared, v: v}, -1, nil
}

func (v *SizeValidator) oversized(n int64) error {
	return fault.New(fault.OversizedInput, "validate",
		fmt.Sprintf("file is %s, the limit is %s", humanBytes(n), humanBytes(v.max)))
}

// remaining measures the bytes between the current offset and the end, then
// restores the offset.
func remaining(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}

// guardReader enforces the ceiling on a stream of unknown length.
type guardReader struct {
	r        io.Reader
	max      int64
	declared int64
	n        int64
	err      error
	v        *SizeValidator
}

func (g *guardReader) Read(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	// Allow one byte past the ceiling so crossing it is observable.
	if room := g.max + 1 - g.n; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := g.r.Read(p)
	g.n += int64(n)

	switch {
	case g.n > g.max:
		g.err = g.v.oversized(g.n)
		return n, g.err
	case err == io.EOF && g.n == 0:
		g.err = fault.New(fault.InvalidInput, "validate", "file is empty")
		return n, g.err
	case err == io.EOF && g.declared >= 0 && g.n != g.declared:
		g.err = fault.New(fault.InvalidInput, "validate",
			fmt.Sprintf("declared length %d does not match actual length %d", g.declared, g.n))
		return n, g.err
	}
	return n, err
}

// Err returns the validation failure the guard tripped on, if any. Store
// clients do not always preserve a reader's error, so the orchestrator
// consults this after a failed upload.
func (g *guardReader) Err() error { return g.err }

// ValidateRecipient normalizes and checks the notification address.
func ValidateRecipient(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fault.New(fault.InvalidInput, "validate", "email is required")
	}
	if len(addr) > MaxRecipientLength {
		return "", fault.New(fault.InvalidInput, "validate",
			fmt.Sprintf("email must be at most %d characters", MaxRecipientLength))
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", fault.New(fault.InvalidInput, "validate", "email is not a valid address")
	}
	return addr, nil
}

func humanBytes(n int64) string {
	const unit = 1 << 20
	if n%unit == 0 {
		return fmt.Sprintf("%d MiB", n/unit)
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/unit)
}
