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

package fwlog

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestOutput(t *testing.T) {
	defer SetOutput(os.Stderr)
	defer SetLevel(LevelInfo)

	tests := []struct {
		name        string
		loggerLevel Level
		log         func()
		wantLevel   string
		wantMsg     string
	}{
		{"info passes at info", LevelInfo, func() { Infof("%s %s", "LevelInfo", "test") }, "INFO", "LevelInfo test"},
		{"debug dropped at info", LevelInfo, func() { Debug("LevelDebug test") }, "", ""},
		{"debug passes at debug", LevelDebug, func() { Debugf("%s%s", "LevelDebug", "Test") }, "DEBUG", "LevelDebugTest"},
		{"info dropped at warn", LevelWarn, func() { Info("LevelInfo test") }, "", ""},
		{"warn passes at warn", LevelWarn, func() { Warn("LevelWarn test") }, "WARN", "LevelWarn test"},
		{"error passes at info", LevelInfo, func() { Errorf("LevelError %d", 1) }, "ERROR", "LevelError 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			SetOutput(buf)
			SetLevel(tt.loggerLevel)
			tt.log()

			lines := decodeLines(t, buf)
			if tt.wantLevel == "" {
				assert.Empty(t, lines)
				return
			}
			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, tt.wantMsg, lines[0]["msg"])
			assert.Contains(t, lines[0], "timestamp")
		})
	}
}

func TestWithAddsFields(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewZapLogger(buf, LevelDebug)
	l.With("key", "uploads/a.txt").With("stage", "uploading").Info("done")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "uploads/a.txt", lines[0]["key"])
	assert.Equal(t, "uploading", lines[0]["stage"])
}

func TestWithSharesLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewZapLogger(buf, LevelInfo)
	child := l.With("k", "v")
	l.SetLevel(LevelError)
	child.Info("dropped")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "level(9)", Level(9).String())
}
