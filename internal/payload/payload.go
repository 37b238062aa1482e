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

// Package payload defines the shared interface every workload engine
// implements, so the supervisor's child driver can dispatch without
// importing any individual workload package and without creating an
// import cycle between the supervisor and the workloads.
package payload

import "context"

// Payload is one worker's realization of a workload: a single call to
// Run corresponds to one run_payload() cycle from spec.md 4.1. The
// child driver calls Run in an infinite loop; workloads that represent
// their own internal "forever" (syscalls, network client, bpf) simply
// never return from a single call under normal operation.
type Payload interface {
	Run(ctx context.Context) error
}
