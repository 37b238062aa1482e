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

// Package processes implements the Processes workload of spec.md 4.4:
// fork short-lived child processes at a Poisson arrival rate, each
// living for an exponentially distributed lifetime.
package processes

import (
	"context"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/berserker/berserker/internal/rng"
	"github.com/sirupsen/logrus"
)

// Config is the Processes worker's arrival/departure rate model.
type Config struct {
	ArrivalRate   float64
	DepartureRate float64
	RandomProcess bool
}

// Worker drives one arrival/sleep cycle per Run call.
type Worker struct {
	cfg Config
	rng *rng.Source
	log *logrus.Entry
}

// New constructs a Processes worker.
func New(cfg Config, src *rng.Source, log *logrus.Entry) *Worker {
	return &Worker{cfg: cfg, rng: src, log: log}
}

// Run performs one payload cycle (spec.md 4.4): sample a lifetime,
// spawn a helper goroutine that drives one process's whole life, sample
// the next inter-arrival interval, and sleep for it. Arrivals are never
// suppressed when departures lag, so the live-process population grows
// whenever arrival_rate > departure_rate.
func (w *Worker) Run(ctx context.Context) error {
	lifetimeS := w.rng.Exponential(w.cfg.DepartureRate)
	go w.spawnProcess(time.Duration(lifetimeS * float64(time.Second)))

	intervalS := w.rng.Exponential(w.cfg.ArrivalRate)
	time.Sleep(time.Duration(intervalS * float64(time.Second)))
	return nil
}

// spawnProcess realizes one transient process for lifetime, either via
// the external stub helper (random_process) or a direct child that
// sleeps then exits, reaping it when it's done (spec.md 4.4).
func (w *Worker) spawnProcess(lifetime time.Duration) {
	if w.cfg.RandomProcess {
		arg := w.rng.RandomAlnum(7)
		cmd := exec.Command("stub", arg)
		if err := cmd.Run(); err != nil {
			w.log.WithError(err).Trace("stub invocation failed")
		}
		return
	}
	w.forkSleepExit(lifetime)
}

// forkSleepExit starts a minimal "sleep lifetime; exit" child against
// /bin/sleep, with no shell in between, and waits on it — the Go
// rework's direct equivalent of the source's fork()-then-sleep-then-
// exit grandchild.
func (w *Worker) forkSleepExit(lifetime time.Duration) {
	seconds := lifetime.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	cmd := exec.Command("/bin/sleep", strconv.FormatFloat(seconds, 'f', 3, 64))
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	if err := cmd.Start(); err != nil {
		w.log.WithError(err).Trace("failed to spawn transient process")
		return
	}
	if err := cmd.Wait(); err != nil {
		w.log.WithError(err).Trace("transient process wait failed")
	}
}
