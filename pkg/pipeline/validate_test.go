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
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/filedrop/pkg/fault"
)

const ceiling = 10 << 20

// stream hides Seek so the validator has to guard the read.
type stream struct{ io.Reader }

func TestValidateSeekable(t *testing.T) {
	v := NewSizeValidator(ceiling)

	testCases := []struct {
		name     string
		declared int64
		size     int
		wantKind fault.Kind
	}{
		{name: "under ceiling", declared: 9 << 20, size: 9 << 20},
		{name: "exactly ceiling", declared: ceiling, size: ceiling},
		{name: "unknown declared", declared: -1, size: 1024},
		{name: "declared over", declared: 12 << 20, size: 1, wantKind: fault.OversizedInput},
		{name: "actual over, declared spoofed", declared: 1024, size: ceiling + 1, wantKind: fault.OversizedInput},
		{name: "declared mismatch", declared: 10, size: 11, wantKind: fault.InvalidInput},
		{name: "empty", declared: -1, size: 0, wantKind: fault.InvalidInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := bytes.NewReader(make([]byte, tc.size))
			body, size, err := v.Validate(tc.declared, r)
			if tc.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Same(t, r, body)
			assert.Equal(t, int64(tc.size), size)
		})
	}
}

func TestValidateRestoresOffset(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))
	_, err := r.Seek(4, io.SeekStart)
	require.NoError(t, err)

	_, size, err := NewSizeValidator(ceiling).Validate(-1, r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)

	rest, _ := io.ReadAll(r)
	assert.Equal(t, "456789", string(rest))
}

func TestValidateStreamGuard(t *testing.T) {
	v := NewSizeValidator(8)

	testCases := []struct {
		name     string
		declared int64
		payload  string
		wantKind fault.Kind
	}{
		{name: "fits", declared: 5, payload: "hello"},
		{name: "fits unknown", declared: -1, payload: "12345678"},
		{name: "crosses ceiling", declared: -1, payload: "123456789", wantKind: fault.OversizedInput},
		{name: "longer than declared", declared: 3, payload: "hello", wantKind: fault.InvalidInput},
		{name: "shorter than declared", declared: 7, payload: "hello", wantKind: fault.InvalidInput},
		{name: "empty", declared: -1, payload: "", wantKind: fault.InvalidInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body, size, err := v.Validate(tc.declared, stream{strings.NewReader(tc.payload)})
			require.NoError(t, err)
			assert.Equal(t, int64(-1), size)

			got, err := io.ReadAll(body)
			if tc.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, fault.KindOf(err))
				assert.Equal(t, tc.wantKind, fault.KindOf(body.(*guardReader).Err()))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.payload, string(got))
		})
	}
}

func TestValidateRejectsNilContent(t *testing.T) {
	_, _, err := NewSizeValidator(ceiling).Validate(1, nil)
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}

func TestCheckDeclared(t *testing.T) {
	v := NewSizeValidator(ceiling)
	assert.NoError(t, v.CheckDeclared(-1))
	assert.NoError(t, v.CheckDeclared(ceiling))

	err := v.CheckDeclared(12 << 20)
	require.Error(t, err)
	assert.Equal(t, fault.OversizedInput, fault.KindOf(err))
	assert.Contains(t, err.Error(), "12 MiB")
	assert.Contains(t, err.Error(), "10 MiB")
}

func TestValidateRecipient(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "user@example.com", want: "user@example.com"},
		{in: "  user@example.com\n", want: "user@example.com"},
		{in: "", wantErr: true},
		{in: "not-an-address", wantErr: true},
		{in: "Name <user@example.com>", wantErr: true},
		{in: strings.Repeat("a", 39) + "@example.com", wantErr: true},
		{in: strings.Repeat("a", 38) + "@example.com", want: strings.Repeat("a", 38) + "@example.com"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ValidateRecipient(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
