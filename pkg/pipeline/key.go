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
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fawa-io/filedrop/pkg/util"
)

const (
	// TokenLength is the number of base62 characters in the uniqueness token.
	TokenLength = 10
	// MaxNameLength bounds the sanitized filename segment of a key.
	MaxNameLength = 128

	keyTimeLayout = "20060102T150405Z"
)

// KeyGenerator derives object keys of the form
//
//	<prefix>/<UTC timestamp>-<random token>/<sanitized filename>
//
// The token carries about 59 bits of crypto randomness, so two concurrent
// uploads of the same name in the same second still get distinct keys. The
// timestamp keeps listings ordered by upload time.
type KeyGenerator struct {
	prefix string
	now    func() time.Time
	token  func(n int) (string, error)
}

func NewKeyGenerator(prefix string, now func() time.Time) *KeyGenerator {
	if now == nil {
		now = time.Now
	}
	return &KeyGenerator{
		prefix: strings.Trim(prefix, "/"),
		now:    now,
		token:  util.RandomString,
	}
}

// New returns a fresh key for filename.
func (g *KeyGenerator) New(filename string) (string, error) {
	token, err := g.token(TokenLength)
	if err != nil {
		return "", err
	}
	segment := g.now().UTC().Format(keyTimeLayout) + "-" + token + "/" + SanitizeFilename(filename)
	if g.prefix == "" {
		return segment, nil
	}
	return g.prefix + "/" + segment, nil
}

// SanitizeFilename reduces a client-supplied name to its base name made of
// [A-Za-z0-9._-], without dot runs or leading dots, at most MaxNameLength
// bytes with the extension preserved. An empty result becomes "file".
func SanitizeFilename(name string) string {
	// Browsers on Windows may send the full client path.
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "/" || name == "." {
		name = ""
	}

	var b strings.Builder
	lastDot := false
	for _, r := range name {
		switch {
		case r == '.':
			if lastDot {
				continue
			}
			lastDot = true
			b.WriteRune(r)
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == utf8.RuneError:
			continue
		default:
			b.WriteByte('_')
		}
		lastDot = false
	}

	out := strings.Trim(b.String(), ".")
	if len(out) > MaxNameLength {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = strings.TrimRight(out[:MaxNameLength-len(ext)], ".") + ext
	}
	if out == "" {
		return "file"
	}
	return out
}
