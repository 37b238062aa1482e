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

package processes

import (
	"context"
	"testing"
	"time"

	"github.com/berserker/berserker/internal/rng"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestForkSleepExitWithZeroLifetimeReturnsPromptly(t *testing.T) {
	w := New(Config{ArrivalRate: 1, DepartureRate: 1}, rng.New(), testLogger())

	done := make(chan struct{})
	go func() {
		w.forkSleepExit(0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("forkSleepExit(0) did not return within 5s")
	}
}

func TestForkSleepExitNegativeLifetimeClampsToZero(t *testing.T) {
	w := New(Config{ArrivalRate: 1, DepartureRate: 1}, rng.New(), testLogger())

	done := make(chan struct{})
	go func() {
		w.forkSleepExit(-1 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("forkSleepExit with negative lifetime did not return within 5s")
	}
}

func TestRunCompletesForHighArrivalRate(t *testing.T) {
	w := New(Config{ArrivalRate: 1000, DepartureRate: 1000}, rng.New(), testLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s for a high arrival rate")
	}
}
