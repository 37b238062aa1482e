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

// Package bpfworker implements the BpfWorker component of spec.md 4.7:
// load nprogs trivial BPF_PROG_TYPE_TRACEPOINT programs, attach each to
// a tracepoint via a BPF link, then park. Programs live until the
// process exits; there is no cleanup path other than process exit.
package bpfworker

import (
	"context"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Config names how many programs to attach and which tracepoint
// (perf_event_attr.config) to bind them to.
type Config struct {
	NPrograms  uint32
	Tracepoint uint64
}

// Worker owns the set of attached links, kept referenced for the
// process's lifetime. cilium/ebpf's Link values detach when garbage
// collected if nothing keeps them referenced, so — unlike the Rust
// original's deliberately leaked Box<fd> — this registry exists
// precisely to hold that reference (spec.md 9, SPEC_FULL.md's
// "Supplemented feature" section).
type Worker struct {
	cfg   Config
	log   *logrus.Entry
	links []link.Link
	progs []*ebpf.Program
}

// New constructs a BpfWorker.
func New(cfg Config, log *logrus.Entry) *Worker {
	return &Worker{cfg: cfg, log: log}
}

// Run loads and attaches Config.NPrograms programs, then parks
// indefinitely. Any syscall failure along the way is logged and
// skipped — the partially attached set is left in place and the loop
// continues to the next program (spec.md 4.7: "no error recovery").
func (w *Worker) Run(ctx context.Context) error {
	for i := uint32(0); i < w.cfg.NPrograms; i++ {
		if err := w.attachOne(i); err != nil {
			w.log.WithError(err).Warnf("failed to attach bpf program %d, continuing", i)
		}
	}
	w.log.Infof("attached %d/%d bpf programs, parking", len(w.links), w.cfg.NPrograms)

	<-ctx.Done()
	return nil
}

// attachOne loads one trivial tracepoint program ("mov64 r0, 0; exit",
// spec.md 4.7) and binds it to the configured tracepoint via a raw perf
// event and a BPF link.
func (w *Worker) attachOne(i uint32) error {
	spec := &ebpf.ProgramSpec{
		Name: fmt.Sprintf("berserker%d", i),
		Type: ebpf.TracePoint,
		Instructions: asm.Instructions{
			asm.Mov.Imm(asm.R0, 0),
			asm.Return(),
		},
		License: "GPL",
	}
	prog, err := ebpf.NewProgram(spec)
	if err != nil {
		return fmt.Errorf("loading program %d: %w", i, err)
	}

	attr := &unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_TRACEPOINT,
		Config:      w.cfg.Tracepoint,
		Sample_type: unix.PERF_SAMPLE_RAW,
		Sample:      1,
		Wakeup:      1,
	}
	fd, err := unix.PerfEventOpen(attr, -1, 0, -1, 0)
	if err != nil {
		prog.Close()
		return fmt.Errorf("perf_event_open for program %d: %w", i, err)
	}

	lnk, err := link.AttachRawLink(link.RawLinkOptions{
		Target:  fd,
		Program: prog,
		Attach:  ebpf.AttachPerfEvent,
	})
	if err != nil {
		unix.Close(fd)
		prog.Close()
		return fmt.Errorf("creating bpf link for program %d: %w", i, err)
	}

	w.progs = append(w.progs, prog)
	w.links = append(w.links, lnk)
	return nil
}
