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

package berserker

import (
	"context"
	"fmt"
	"os"

	"github.com/berserker/berserker/internal/payload"
	"github.com/berserker/berserker/internal/rng"
	"github.com/berserker/berserker/internal/workload/bpfworker"
	"github.com/berserker/berserker/internal/workload/endpoints"
	"github.com/berserker/berserker/internal/workload/network"
	"github.com/berserker/berserker/internal/workload/processes"
	"github.com/berserker/berserker/internal/workload/syscallsworker"
	"github.com/sirupsen/logrus"
)

// IsChild reports whether the current process was re-exec'd as a
// worker (see base.go's childModeEnvVar).
func IsChild() (string, bool) {
	if raw, ok := os.LookupEnv(childModeEnvVar); ok && raw == "1" {
		desc, ok := os.LookupEnv(descriptorEnvVar)
		return desc, ok
	}
	return "", false
}

// RunChild pins the process to its assigned core (if requested),
// builds the one payload this worker drives, and enters the
// `loop { run_payload() }` of spec.md 4.1. Workers install no signal
// handlers: a SIGTERM from the parent's watchdog terminates the
// process immediately via default OS semantics (spec.md 5).
func RunChild(ctx context.Context, root *logrus.Logger, desc WorkerDescriptor) error {
	log := WorkerLogger(root, desc.Base, desc.Config.Workload.Type)

	if desc.Config.PerCore {
		if err := pinToCPU(desc.Base.CPUID); err != nil {
			log.WithError(err).Warn("failed to pin to assigned core, continuing unpinned")
		}
	}

	p, err := buildPayload(desc, log)
	if err != nil {
		return fmt.Errorf("building payload: %w", err)
	}

	for {
		if err := p.Run(ctx); err != nil {
			log.WithError(err).Error("payload run failed, restarting")
		}
	}
}

func buildPayload(desc WorkerDescriptor, log *logrus.Entry) (payload.Payload, error) {
	src := rng.New()
	wl := desc.Config.Workload

	switch wl.Type {
	case "endpoints":
		if desc.PortSlice == nil {
			return nil, fmt.Errorf("endpoints worker missing port slice")
		}
		return endpoints.New(endpoints.Config{
			RestartInterval: desc.Config.RestartInterval,
			PortStart:       desc.PortSlice.Start,
			PortLen:         desc.PortSlice.Len,
		}, log), nil
	case "processes":
		return processes.New(processes.Config{
			ArrivalRate:   wl.ArrivalRate,
			DepartureRate: wl.DepartureRate,
			RandomProcess: wl.RandomProcess,
		}, src, log), nil
	case "syscalls":
		return syscallsworker.New(syscallsworker.Config{
			ArrivalRate: wl.ArrivalRate,
			TightLoop:   wl.TightLoop,
			SyscallNr:   wl.SyscallNr,
		}, src, log), nil
	case "network":
		return network.New(network.Config{
			Server:        wl.Server,
			Address:       [4]byte(wl.Address),
			TargetPort:    wl.TargetPort,
			ArrivalRate:   wl.ArrivalRate,
			DepartureRate: wl.DepartureRate,
			NConnections:  wl.NConnections,
			SendInterval:  wl.SendInterval,
			ConnsPerAddr:  wl.ConnsPerAddr,
		}, src, log), nil
	case "bpf":
		return bpfworker.New(bpfworker.Config{
			NPrograms:  wl.NPrograms,
			Tracepoint: wl.Tracepoint,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown workload type %q", wl.Type)
	}
}
