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
	"testing"

	"github.com/fawa-io/filedrop/pkg/fault"
)

func TestStageString(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{Validating, "validating"},
		{Uploading, "uploading"},
		{LinkIssuing, "link_issuing"},
		{Notifying, "notifying"},
		{Done, "done"},
		{Stage(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(tt.stage), got, tt.want)
		}
	}
}

func TestFailureKeepsRunningStage(t *testing.T) {
	out := failure(Notifying, fault.New(fault.MailTransportError, "dispatch", "down"))
	if out.OK() {
		t.Fatal("failure outcome reports OK")
	}
	if out.Stage != Notifying {
		t.Errorf("Stage = %s, want %s", out.Stage, Notifying)
	}
}
