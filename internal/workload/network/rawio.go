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
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// pollTUN waits up to budget for the TUN fd to become readable, the Go
// rework's equivalent of spec.md 4.6 step 1's iface.poll/phy_wait: it
// lets the link make progress without ever blocking the population
// loop longer than the configured floor.
func pollTUN(d *tunDevice, budget time.Duration) error {
	fd := int(d.file.Fd())
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, err := unix.Poll(pfd, int(budget/time.Millisecond))
	if err != nil && err != unix.EINTR {
		return err
	}
	return nil
}

// canRecv makes one non-blocking attempt to drain a frame from the TUN
// device. Content is discarded — spec.md 4.6 only requires that the
// receive buffer be drained, not interpreted.
func canRecv(d *tunDevice, buf []byte) bool {
	n, err := unix.Read(int(d.file.Fd()), buf)
	return err == nil && n > 0
}

// writeFrame sends payload as a minimal IPv4/TCP-framed datagram from
// c.local to c.remote:c.remotePort. The TCP header carries no
// handshake state — berserker's population manager does not implement
// the full TCP state machine (SPEC_FULL.md's NetworkWorker section);
// it frames traffic realistically enough to exercise connection
// tracking and packet counters on the receiving host, which is the
// workload's actual purpose.
func writeFrame(d *tunDevice, c *connection, payload []byte) error {
	pkt := buildIPv4TCP(c.local.Addr, c.local.Port, c.remote, c.remotePort, payload)
	_, err := d.file.Write(pkt)
	return err
}

func buildIPv4TCP(srcAddr [4]byte, srcPort uint16, dstAddr [4]byte, dstPort uint16, payload []byte) []byte {
	const ipHeaderLen = 20
	const tcpHeaderLen = 20
	total := ipHeaderLen + tcpHeaderLen + len(payload)

	pkt := make([]byte, total)

	// IPv4 header.
	pkt[0] = 0x45 // version 4, IHL 5
	pkt[1] = 0
	binary.BigEndian.PutUint16(pkt[2:4], uint16(total))
	binary.BigEndian.PutUint16(pkt[4:6], 0) // identification
	pkt[6] = 0x40                           // don't fragment
	pkt[8] = 64                             // TTL
	pkt[9] = 6                              // protocol: TCP
	copy(pkt[12:16], srcAddr[:])
	copy(pkt[16:20], dstAddr[:])
	binary.BigEndian.PutUint16(pkt[10:12], ipChecksum(pkt[:ipHeaderLen]))

	// TCP header (no options; PSH+ACK set so the payload is treated as
	// in-stream data by anything actually parsing it).
	tcp := pkt[ipHeaderLen:]
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], 0)  // seq
	binary.BigEndian.PutUint32(tcp[8:12], 0) // ack
	tcp[12] = 5 << 4                         // data offset
	tcp[13] = 0x18                           // PSH|ACK
	binary.BigEndian.PutUint16(tcp[14:16], 65535)
	copy(tcp[tcpHeaderLen:], payload)

	return pkt
}

// ipChecksum computes the standard one's-complement IPv4 header
// checksum over hdr, with the checksum field itself assumed zero.
func ipChecksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	if len(hdr)%2 == 1 {
		sum += uint32(hdr[len(hdr)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
