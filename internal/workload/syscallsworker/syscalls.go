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

// Package syscallsworker implements the Syscalls workload of spec.md
// 4.5: issue a chosen syscall in a tight loop or Poisson-paced,
// exercising the trap path. Failures are expected and ignored — many
// chosen syscalls (e.g. a bogus fd) are meant to fail.
package syscallsworker

import (
	"context"
	"strconv"
	"time"

	"github.com/berserker/berserker/internal/rng"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Config is the Syscalls worker's pacing model and target syscall.
type Config struct {
	ArrivalRate float64
	TightLoop   bool
	SyscallNr   string
}

// Worker issues Config.SyscallNr in a loop, logging throughput every 10
// seconds.
type Worker struct {
	cfg    Config
	rng    *rng.Source
	log    *logrus.Entry
	invoke func()
}

// New resolves syscall_nr to a callable and constructs a Syscalls
// worker.
func New(cfg Config, src *rng.Source, log *logrus.Entry) *Worker {
	return &Worker{cfg: cfg, rng: src, log: log, invoke: resolve(cfg.SyscallNr)}
}

// Run is the Syscalls workload's entire payload: spec.md 4.5 describes
// this as "forever", so — unlike the other workloads — a single Run
// call does not return under normal operation; it only unwinds via the
// process's default SIGTERM termination.
func (w *Worker) Run(ctx context.Context) error {
	var count uint64
	windowStart := time.Now()
	for {
		w.invoke()
		count++

		if elapsed := time.Since(windowStart); elapsed >= 10*time.Second {
			w.log.Infof("issued %d syscalls in %s", count, elapsed.Round(time.Millisecond))
			count = 0
			windowStart = time.Now()
		}

		if !w.cfg.TightLoop {
			intervalS := w.rng.Exponential(w.cfg.ArrivalRate)
			time.Sleep(time.Duration(intervalS * float64(time.Second)))
		}
	}
}

// resolve maps a syscall_nr name (or, failing that, a raw numeric
// syscall number) to a zero-argument callable. Every invocation's
// error is ignored: the workload's purpose is to exercise the
// kernel's syscall-entry tracing regardless of success (spec.md 4.5,
// 7).
func resolve(name string) func() {
	switch name {
	case "getpid":
		return func() { unix.Getpid() }
	case "gettid":
		return func() { unix.Gettid() }
	case "getppid":
		return func() { unix.Getppid() }
	case "close":
		return func() { _ = unix.Close(-1) }
	case "getrandom":
		return func() {
			buf := make([]byte, 8)
			_, _ = unix.Getrandom(buf, 0)
		}
	default:
		if nr, err := strconv.ParseInt(name, 10, 64); err == nil {
			return func() { unix.Syscall(uintptr(nr), 0, 0, 0) }
		}
		// Unresolvable names still exercise a trap: SYS_GETPID is always
		// a safe, side-effect-free fallback.
		return func() { unix.Getpid() }
	}
}
