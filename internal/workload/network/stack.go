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

// Package network implements the Network workload of spec.md 4.6: a
// kernel-socket server mode, and a client mode that drives a userspace
// connection population over a TUN device.
package network

import (
	"fmt"
	"time"
)

// socketHandle is a dense integer index into connTable's slab — stable
// across loop iterations so the dynamic-sockets map's keys stay valid,
// per spec.md 9's design note.
type socketHandle int

// connection is one entry in the population: either "static" (lives
// for the whole run) or "dynamic" (torn down when its sampled lifetime
// elapses, or preempted to admit a new arrival).
type connection struct {
	local      localEndpoint
	remote     [4]byte
	remotePort uint16
	dynamic    bool
	openedAt   time.Time
	lifetimeS  float64
}

// connTable is the population manager's socket set: a slab indexed by
// handle, plus a parallel dense vector of dynamic handles so a uniform
// random preemption victim can be picked in O(1) (spec.md 9's second
// design note — map iteration order is not indexable).
type connTable struct {
	slots          []*connection
	freeHandles    []socketHandle
	dynamicHandles []socketHandle
	dynamicIndex   map[socketHandle]int
	staticCount    int
}

func newConnTable() *connTable {
	return &connTable{dynamicIndex: make(map[socketHandle]int)}
}

// insert adds c to the table and returns its stable handle.
func (t *connTable) insert(c *connection) socketHandle {
	var h socketHandle
	if n := len(t.freeHandles); n > 0 {
		h = t.freeHandles[n-1]
		t.freeHandles = t.freeHandles[:n-1]
		t.slots[h] = c
	} else {
		h = socketHandle(len(t.slots))
		t.slots = append(t.slots, c)
	}
	if c.dynamic {
		t.dynamicIndex[h] = len(t.dynamicHandles)
		t.dynamicHandles = append(t.dynamicHandles, h)
	} else {
		t.staticCount++
	}
	return h
}

// remove deletes h from the table. Removing a dynamic handle swaps the
// last element of dynamicHandles into its slot to keep removal O(1),
// per the slab/parallel-vector design of spec.md 9.
func (t *connTable) remove(h socketHandle) {
	c := t.slots[h]
	if c == nil {
		return
	}
	if c.dynamic {
		idx, ok := t.dynamicIndex[h]
		if ok {
			last := len(t.dynamicHandles) - 1
			t.dynamicHandles[idx] = t.dynamicHandles[last]
			t.dynamicIndex[t.dynamicHandles[idx]] = idx
			t.dynamicHandles = t.dynamicHandles[:last]
			delete(t.dynamicIndex, h)
		}
	} else {
		t.staticCount--
	}
	t.slots[h] = nil
	t.freeHandles = append(t.freeHandles, h)
}

func (t *connTable) get(h socketHandle) (*connection, bool) {
	if int(h) >= len(t.slots) {
		return nil, false
	}
	c := t.slots[h]
	return c, c != nil
}

// dynamicLen reports the current size of the dynamic population.
func (t *connTable) dynamicLen() int { return len(t.dynamicHandles) }

// totalConns is the invariant of spec.md 8: static count plus dynamic
// map size.
func (t *connTable) totalConns() int { return t.staticCount + t.dynamicLen() }

// randomDynamicHandle picks a uniformly random dynamic handle using the
// parallel vector, for the preemption step of spec.md 4.6.
func (t *connTable) randomDynamicHandle(idx int) (socketHandle, bool) {
	n := len(t.dynamicHandles)
	if n == 0 {
		return 0, false
	}
	return t.dynamicHandles[idx%n], true
}

// allHandles returns every live handle, static and dynamic, for the
// per-iteration recv/send/expiry scan of spec.md 4.6 step 3.
func (t *connTable) allHandles() []socketHandle {
	out := make([]socketHandle, 0, len(t.slots)-len(t.freeHandles))
	for h, c := range t.slots {
		if c != nil {
			out = append(out, socketHandle(h))
		}
	}
	return out
}

func (c *connection) String() string {
	return fmt.Sprintf("%s:%d->%d.%d.%d.%d:%d", ipString(c.local.Addr), c.local.Port,
		c.remote[0], c.remote[1], c.remote[2], c.remote[3], c.remotePort)
}

func ipString(a [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}
