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
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGeneratorFormat(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 45, 0, time.FixedZone("PDT", -7*3600))
	g := NewKeyGenerator("/uploads/", func() time.Time { return now })

	key, err := g.New("Quarterly Report.pdf")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^uploads/20250601T193045Z-[A-Za-z0-9]{10}/Quarterly_Report\.pdf$`), key)
}

func TestKeyGeneratorUnique(t *testing.T) {
	g := NewKeyGenerator("uploads", func() time.Time { return time.Unix(0, 0) })
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		key, err := g.New("same.txt")
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestKeyGeneratorWithoutPrefix(t *testing.T) {
	g := NewKeyGenerator("", nil)
	g.token = func(int) (string, error) { return "abcdefghij", nil }
	key, err := g.New("a.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "-abcdefghij/a.txt"))
	assert.False(t, strings.HasPrefix(key, "/"))
}

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\My File.txt`, "My_File.txt"},
		{"..", "file"},
		{"", "file"},
		{"/", "file"},
		{"a..b...c", "a.b.c"},
		{".hidden", "hidden"},
		{"rés umé.doc", "r_s_um_.doc"},
		{"x<script>.html", "x_script_.html"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got := SanitizeFilename(tc.in)
			assert.Equal(t, tc.want, got)
			assert.NotContains(t, got, "..")
			assert.NotContains(t, got, "/")
		})
	}
}

func TestSanitizeFilenameBoundsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("n", 300) + ".tar")
	assert.Len(t, got, MaxNameLength)
	assert.True(t, strings.HasSuffix(got, ".tar"))
}
