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

import "encoding/binary"

// localEndpoint is one client-mode connection's synthetic local
// (address, port) pair, per spec.md 4.6.
type localEndpoint struct {
	Addr [4]byte
	Port uint16
}

// getLocalAddrPort implements spec.md 4.6/8's deterministic local
// endpoint assignment: local_port = 49152 + (i mod C), addr_index =
// floor(i/C) + 1, local_addr = base + addr_index with carry propagated
// across all four octets (base treated as a big-endian uint32).
func getLocalAddrPort(base [4]byte, connsPerAddr uint32, i uint64) localEndpoint {
	if connsPerAddr == 0 {
		connsPerAddr = 1
	}
	c := uint64(connsPerAddr)
	port := uint16(49152 + (i % c))
	addrIndex := i/c + 1

	baseInt := binary.BigEndian.Uint32(base[:])
	sum := uint64(baseInt) + addrIndex
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], uint32(sum))

	return localEndpoint{Addr: out, Port: port}
}
