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
	"encoding/json"
	"fmt"

	"github.com/berserker/berserker/internal/config"
	"github.com/berserker/berserker/internal/portalloc"
)

// BaseConfig identifies one worker for logging, per spec.md 3.
type BaseConfig struct {
	CPUID        uint32 `json:"cpu_id"`
	ProcessIndex int    `json:"process_index"`
}

// WorkerDescriptor is everything a child process needs to run its
// payload: its identity, the full (already layered) configuration, and
// — for an Endpoints worker only — the port slice drawn from the
// supervisor's allocator before fork (spec.md 4.1 step 3a, 4.2, 9).
type WorkerDescriptor struct {
	Base      BaseConfig       `json:"base"`
	Config    config.Config    `json:"config"`
	PortSlice *portalloc.Slice `json:"port_slice,omitempty"`
}

// descriptorEnvVar carries the JSON-encoded WorkerDescriptor across the
// re-exec boundary (see supervisor.go). childModeEnvVar marks a process
// as a child re-invocation of the same binary.
const (
	childModeEnvVar  = "BERSERKER_CHILD"
	descriptorEnvVar = "BERSERKER_WORKER_DESC"
)

// Encode serializes the descriptor for the child process's environment.
func (d WorkerDescriptor) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding worker descriptor: %w", err)
	}
	return string(b), nil
}

// DecodeDescriptor parses a JSON-encoded descriptor, such as the value
// IsChild returns from the environment; called by the child after
// re-exec.
func DecodeDescriptor(raw string) (WorkerDescriptor, error) {
	var d WorkerDescriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("decoding worker descriptor: %w", err)
	}
	return d, nil
}
