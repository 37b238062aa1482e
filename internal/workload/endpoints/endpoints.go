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

// Package endpoints implements the Endpoints workload of spec.md 4.3:
// hold N listening TCP sockets for restart_interval seconds, then
// recycle them.
package endpoints

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the Endpoints worker's static state: a restart cadence and
// the port slice drawn for it by the supervisor's allocator.
type Config struct {
	RestartInterval uint64
	PortStart       uint16
	PortLen         uint64
}

// Worker binds PortLen listeners starting at PortStart, churning them
// every RestartInterval seconds.
type Worker struct {
	cfg Config
	log *logrus.Entry
}

// New constructs an Endpoints worker. A zero-length port range (a Zipf
// draw that rounded to 0, spec.md 4.2) produces a worker whose payload
// is a no-op that still participates in restart timing.
func New(cfg Config, log *logrus.Entry) *Worker {
	return &Worker{cfg: cfg, log: log}
}

// Run binds PortLen listeners, sleeps RestartInterval seconds, and
// closes them all — spec.md 4.3's single churn cycle. The choice of
// 0.0.0.0 over 127.0.0.1 is deliberate (spec.md 9 Open question):
// binding on all interfaces exercises the host's port-bind machinery at
// the same level real services would, not just loopback.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.PortLen == 0 {
		time.Sleep(time.Duration(w.cfg.RestartInterval) * time.Second)
		return nil
	}
	var wg sync.WaitGroup
	for i := uint64(0); i < w.cfg.PortLen; i++ {
		port := w.cfg.PortStart + uint16(i)
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			w.holdListener(port)
		}(port)
	}
	wg.Wait()
	return nil
}

// holdListener binds one port, sleeps for the restart interval, then
// closes it. Bind failures (EADDRINUSE, ENFILE, ...) are swallowed per
// port (spec.md 4.3, 7): the worker keeps participating in the churn
// cycle regardless of any single port's outcome.
func (w *Worker) holdListener(port uint16) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		w.log.WithError(err).Tracef("bind failed on port %d, skipping this cycle", port)
		time.Sleep(time.Duration(w.cfg.RestartInterval) * time.Second)
		return
	}
	defer ln.Close()
	time.Sleep(time.Duration(w.cfg.RestartInterval) * time.Second)
}
