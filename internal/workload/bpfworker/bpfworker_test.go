// Copyright 2024 The Berserker Authors.
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

package bpfworker

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

// TestRunZeroProgramsParksUntilCancel covers the only path that does
// not need CAP_BPF: NPrograms=0 skips attachOne entirely and the
// worker just parks on ctx.Done() (spec.md 4.7). attachOne itself
// requires a real kernel and elevated privileges to exercise and is
// left to integration testing against an actual host.
func TestRunZeroProgramsParksUntilCancel(t *testing.T) {
	w := New(Config{NPrograms: 0, Tracepoint: 0}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-done:
		t.Fatal("Run() returned before context cancellation")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return within 2s of context cancellation")
	}

	if len(w.links) != 0 || len(w.progs) != 0 {
		t.Errorf("expected no links/programs attached for NPrograms=0, got links=%d progs=%d", len(w.links), len(w.progs))
	}
}
