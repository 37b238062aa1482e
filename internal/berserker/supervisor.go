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

// Package berserker implements the supervisor / fan-out scheduler of
// spec.md 4.1: it enumerates CPU cores, draws port slices from a
// single process-ordered allocator, re-execs itself once per (core,
// worker-index) pair so each workload runs isolated in its own OS
// process, then runs a watchdog and a reaper.
package berserker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/berserker/berserker/internal/config"
	"github.com/berserker/berserker/internal/portalloc"
	"github.com/berserker/berserker/internal/rng"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// child is one forked-off worker process as tracked by the parent. A
// nil Cmd marks a slot whose fork attempt failed (spec.md 4.1 Failure
// semantics: the slot is skipped, not removed).
type child struct {
	desc WorkerDescriptor
	cmd  *exec.Cmd
}

// Supervisor owns the fan-out, the watchdog and the reaper.
type Supervisor struct {
	cfg      *config.Config
	log      *logrus.Entry
	selfPath string
	children []*child
}

// New builds a Supervisor for cfg. selfPath is the executable to
// re-exec per worker (the teacher's sandbox.go re-execs itself the same
// way for its sandboxed child process; here every worker — not just a
// sandbox — gets that isolation, per spec.md 9's "process fan-out vs.
// in-process tasks").
func New(cfg *config.Config, log *logrus.Logger, selfPath string) *Supervisor {
	return &Supervisor{cfg: cfg, log: SupervisorLogger(log), selfPath: selfPath}
}

// Run executes the full fan-out/watchdog/reap lifecycle and blocks
// until every child has been reaped (or the process is killed
// externally). It returns the first fatal reap error, if any.
func (s *Supervisor) Run() error {
	for _, desc := range plan(s.cfg, onlineCores(s.cfg.PerCore), portalloc.New(), rng.New()) {
		s.fork(desc)
	}

	var watchdogDone chan struct{}
	if s.cfg.Duration > 0 {
		watchdogDone = make(chan struct{})
		go s.watchdog(watchdogDone)
	}

	err := s.reap()
	if watchdogDone != nil {
		<-watchdogDone
	}
	return err
}

// fork re-execs the current binary as a child worker carrying desc. A
// transient Start failure (e.g. EAGAIN from a momentarily exhausted
// process table) is retried a few times with a constant backoff, the
// same pattern the teacher's sandbox.go uses to poll a condition
// rather than fail on the first miss; a Start failure that persists is
// logged and the slot is recorded with a nil Cmd so the reaper skips it
// (spec.md 4.1 Failure semantics).
func (s *Supervisor) fork(desc WorkerDescriptor) {
	enc, err := desc.Encode()
	if err != nil {
		s.log.WithError(err).Warn("failed to encode worker descriptor, skipping slot")
		s.children = append(s.children, &child{desc: desc, cmd: nil})
		return
	}

	var cmd *exec.Cmd
	startErr := backoff.Retry(func() error {
		cmd = exec.Command(s.selfPath)
		cmd.Args[0] = fmt.Sprintf("berserker-worker[%d]", desc.Base.ProcessIndex)
		cmd.Env = append(os.Environ(), childModeEnvVar+"=1", descriptorEnvVar+"="+enc)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
		return cmd.Start()
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3))

	if startErr != nil {
		s.log.WithError(startErr).Warnf("fork failed for worker %d on cpu %d", desc.Base.ProcessIndex, desc.Base.CPUID)
		s.children = append(s.children, &child{desc: desc, cmd: nil})
		return
	}
	s.log.Infof("started worker %d (pid %d) on cpu %d", desc.Base.ProcessIndex, cmd.Process.Pid, desc.Base.CPUID)
	s.children = append(s.children, &child{desc: desc, cmd: cmd})
}

// watchdog implements spec.md 4.1's duration gate: once the wall-clock
// budget elapses, SIGTERM is sent to every child that is still running.
func (s *Supervisor) watchdog(done chan<- struct{}) {
	defer close(done)
	start := time.Now()
	budget := time.Duration(s.cfg.Duration) * time.Second
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if time.Since(start) > budget {
			s.terminateAll()
			return
		}
	}
}

func (s *Supervisor) terminateAll() {
	for _, c := range s.children {
		if c.cmd == nil || c.cmd.Process == nil {
			continue
		}
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.WithError(err).Debugf("sending SIGTERM to worker %d", c.desc.Base.ProcessIndex)
		}
	}
}

// reap waits for every recorded child, tolerating "no such child"
// (ECHILD) as non-fatal; any other wait failure is fatal (spec.md 4.1 Guarantees,
// 7 Error taxonomy).
func (s *Supervisor) reap() error {
	var firstFatal error
	for _, c := range s.children {
		if c.cmd == nil {
			continue
		}
		err := c.cmd.Wait()
		if err == nil {
			continue
		}
		if isNoSuchChild(err) {
			continue
		}
		if _, ok := err.(*exec.ExitError); ok {
			// A worker exiting (including via SIGTERM from the
			// watchdog) is expected, not a reap failure.
			continue
		}
		s.log.WithError(err).Errorf("fatal wait failure for worker %d", c.desc.Base.ProcessIndex)
		if firstFatal == nil {
			firstFatal = err
		}
	}
	return firstFatal
}

func isNoSuchChild(err error) bool {
	return errors.Is(err, syscall.ECHILD)
}

// drawDistribution draws a single non-negative count from the
// Endpoints workload's configured distribution (spec.md 4.2).
func drawDistribution(src *rng.Source, d config.Distribution) uint64 {
	switch d.Kind {
	case "zipf":
		return src.Zipfian(d.NPorts, d.Exponent)
	case "uniform":
		return src.Uniform(d.Lower, d.Upper)
	default:
		return 0
	}
}

// plan enumerates the Cartesian product of cores x workers in
// iteration order (spec.md 4.1 step 3) and, for Endpoints workloads,
// draws each worker's port slice from alloc before any process is
// started — the allocator only ever runs single-threaded in the
// supervisor, before fork (spec.md 4.1, 4.2, 9).
func plan(cfg *config.Config, cores []uint32, alloc *portalloc.Allocator, src *rng.Source) []WorkerDescriptor {
	var out []WorkerDescriptor
	processIndex := 0
	for _, core := range cores {
		for w := uint64(0); w < cfg.Workers; w++ {
			desc := WorkerDescriptor{
				Base: BaseConfig{
					CPUID:        core,
					ProcessIndex: processIndex,
				},
				Config: *cfg,
			}
			if cfg.Workload.Type == "endpoints" {
				n := drawDistribution(src, cfg.Workload.AsDistribution())
				slice := alloc.Allocate(n)
				desc.PortSlice = &slice
			}
			out = append(out, desc)
			processIndex++
		}
	}
	return out
}
