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

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/fawa-io/filedrop/pkg/fault"
)

func TestRedisLimiter_Allow(t *testing.T) {
	client, mock := redismock.NewClientMock()

	limiter := newRedisLimiter(client, 2, time.Hour)
	key := Key("User@Example.com")

	testCases := []struct {
		name     string
		mocker   func()
		wantKind fault.Kind
		wantErr  bool
	}{
		{
			name: "first message opens the window",
			mocker: func() {
				mock.ExpectIncr(key).SetVal(1)
				mock.ExpectExpire(key, time.Hour).SetVal(true)
			},
		},
		{
			name: "within budget",
			mocker: func() {
				mock.ExpectIncr(key).SetVal(2)
			},
		},
		{
			name: "over budget",
			mocker: func() {
				mock.ExpectIncr(key).SetVal(3)
			},
			wantKind: fault.RateLimited,
			wantErr:  true,
		},
		{
			name: "redis error fails open",
			mocker: func() {
				mock.ExpectIncr(key).SetErr(errors.New("connection refused"))
			},
		},
		{
			name: "expire error fails open",
			mocker: func() {
				mock.ExpectIncr(key).SetVal(1)
				mock.ExpectExpire(key, time.Hour).SetErr(errors.New("readonly"))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.mocker()
			err := limiter.Allow(context.Background(), "User@Example.com")
			if (err != nil) != tc.wantErr {
				t.Fatalf("Allow() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr && fault.KindOf(err) != tc.wantKind {
				t.Errorf("Allow() kind = %s, want %s", fault.KindOf(err), tc.wantKind)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestKeyNormalizes(t *testing.T) {
	if Key(" a@b.c ") != Key("A@B.C") {
		t.Error("Key() should ignore case and surrounding space")
	}
	if Key("a@b.c") == Key("a@b.d") {
		t.Error("Key() collided for different recipients")
	}
}
