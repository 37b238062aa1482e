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
	"fmt"
	"time"

	"github.com/berserker/berserker/internal/berrors"
	"golang.org/x/time/rate"
)

const (
	// pollFloor is the 100ms floor of spec.md 4.6 step 5, preventing
	// livelock when the stack has nothing to say.
	pollFloor = 100 * time.Millisecond

	// staticBufferBytes is the nominal send/receive buffer size of a
	// static socket. The connection table keeps no per-connection
	// buffers, so nothing in the client loop reads this value.
	staticBufferBytes = 1024

	// defaultDynMax caps the dynamic population at a fixed 4096
	// connections. The cap is not configurable and does not depend on
	// ConnsPerAddr.
	defaultDynMax = 4096
)

// runClient drives the userspace connection population over a TUN
// device (spec.md 4.6). Any socket-handle resolution failure aborts
// this run with an *berrors.Internal error, so the caller's outer
// `loop { run_payload() }` rebuilds the TUN device and interface from
// scratch, per spec.md 7.
func (w *Worker) runClient(ctx context.Context) error {
	tun, err := openTUN(w.cfg.Address)
	if err != nil {
		return fmt.Errorf("client TUN setup failed (fatal to worker): %w", err)
	}
	defer tun.Close()

	table := newConnTable()
	connsPerAddr := w.cfg.ConnsPerAddr
	if connsPerAddr == 0 {
		connsPerAddr = 1
	}

	var nextIndex uint64
	for i := uint32(0); i < w.cfg.NConnections; i++ {
		local := getLocalAddrPort(w.cfg.Address, connsPerAddr, nextIndex)
		table.insert(&connection{
			local:      local,
			remote:     w.cfg.Address,
			remotePort: w.cfg.TargetPort,
			dynamic:    false,
		})
		nextIndex++
	}
	totalConns := uint64(w.cfg.NConnections)

	dynMax := defaultDynMax

	arrivalsTimer := time.Now()
	nextArrivalIntervalS := w.rng.Exponential(w.cfg.ArrivalRate)

	sendLimiter := rate.NewLimiter(rate.Every(time.Duration(w.cfg.SendInterval)*time.Millisecond), 1)
	sendIdx := 0

	frame := make([]byte, 1500)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Step 1: wait up to pollFloor for the TUN fd to become
		// readable. Nothing is read here; frames are drained in step 3.
		if err := pollTUN(tun, pollFloor); err != nil {
			return berrors.NewInternal("poll tun device", err)
		}

		// Step 2: arrivals.
		if time.Since(arrivalsTimer) > time.Duration(nextArrivalIntervalS*float64(time.Second)) {
			lifetimeS := w.rng.Exponential(w.cfg.DepartureRate)

			if table.dynamicLen() >= dynMax {
				if victim, ok := table.randomDynamicHandle(int(w.rng.Int63n(int64(dynMax)))); ok {
					table.remove(victim)
					totalConns--
				}
			}

			if table.dynamicLen() < dynMax {
				// spec.md 9's Open question: total_conns must only
				// advance after a successful insert, so the candidate
				// index is computed from the value it would become,
				// and committed only once the insert lands.
				candidate := totalConns + 1
				local := getLocalAddrPort(w.cfg.Address, connsPerAddr, candidate)
				c := &connection{
					local:      local,
					remote:     w.cfg.Address,
					remotePort: w.cfg.TargetPort,
					dynamic:    true,
					openedAt:   time.Now(),
					lifetimeS:  lifetimeS,
				}
				table.insert(c)
				totalConns = candidate
				w.log.Tracef("opened dynamic connection %s, lifetime %.2fs", c, lifetimeS)
			}

			nextArrivalIntervalS = w.rng.Exponential(w.cfg.ArrivalRate)
			arrivalsTimer = time.Now()
		}

		// Step 3: scan every live connection for expiry, recv and send.
		var expired []socketHandle
		for _, h := range table.allHandles() {
			c, ok := table.get(h)
			if !ok {
				return berrors.NewInternal("resolve socket handle", fmt.Errorf("handle %d has no live connection", h))
			}
			if c.dynamic && time.Since(c.openedAt) > time.Duration(c.lifetimeS*float64(time.Second)) {
				expired = append(expired, h)
				continue
			}

			if canRecv(tun, frame) {
				// Content is ignored — draining the receive buffer is
				// the only observable effect, per spec.md 4.6.
			}

			if sendLimiter.Allow() {
				payload := []byte(fmt.Sprintf("hello %d\n", sendIdx))
				_ = writeFrame(tun, c, payload)
				sendIdx++
			}
		}

		// Step 4: remove every queued handle, decrementing total_conns.
		for _, h := range expired {
			table.remove(h)
			totalConns--
		}

		time.Sleep(pollFloor)
	}
}
