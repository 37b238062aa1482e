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

package network

import (
	"context"

	"github.com/berserker/berserker/internal/rng"
	"github.com/sirupsen/logrus"
)

// Config is the Network workload's configuration (spec.md 3).
type Config struct {
	Server        bool
	Address       [4]byte
	TargetPort    uint16
	ArrivalRate   float64
	DepartureRate float64
	NConnections  uint32
	SendInterval  uint64
	ConnsPerAddr  uint32
}

// Worker dispatches to server or client mode.
type Worker struct {
	cfg Config
	rng *rng.Source
	log *logrus.Entry
}

// New constructs a Network worker.
func New(cfg Config, src *rng.Source, log *logrus.Entry) *Worker {
	return &Worker{cfg: cfg, rng: src, log: log}
}

// Run dispatches to runServer or runClient, per spec.md 4.6.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.Server {
		return w.runServer(ctx)
	}
	return w.runClient(ctx)
}
