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

package util

import (
	"crypto/rand"
	"math/big"
)

var runesofrandom = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

var alphabetLen = big.NewInt(int64(len(runesofrandom)))

// RandomString returns n characters drawn uniformly from [a-zA-Z0-9] using
// crypto/rand, so tokens are safe to embed in object keys that must not be
// guessable.
func RandomString(n int) (string, error) {
	b := make([]rune, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = runesofrandom[idx.Int64()]
	}
	return string(b), nil
}
