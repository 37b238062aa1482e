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
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// onlineCores returns the core set C of spec.md 4.1 step 1: all online
// CPU cores when per_core is requested, or just core 0 otherwise.
func onlineCores(perCore bool) []uint32 {
	if !perCore {
		return []uint32{0}
	}
	n := runtime.NumCPU()
	cores := make([]uint32, n)
	for i := range cores {
		cores[i] = uint32(i)
	}
	return cores
}

// pinToCPU binds the calling OS thread to one core via
// sched_setaffinity (pid 0 selects the calling thread), mirroring the
// teacher stack's direct use of golang.org/x/sys/unix for low-level
// process control. Other threads the Go runtime is already running are
// not re-pinned.
func pinToCPU(core uint32) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(int(core))
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity core %d: %w", core, err)
	}
	return nil
}
