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

import "testing"

func TestGetLocalAddrPortPacksPerAddress(t *testing.T) {
	base := [4]byte{10, 0, 0, 1}
	const c = 100

	for i := uint64(0); i < 250; i++ {
		got := getLocalAddrPort(base, c, i)
		wantPort := uint16(49152 + (i % c))
		if got.Port != wantPort {
			t.Fatalf("i=%d: port = %d, want %d", i, got.Port, wantPort)
		}
		wantAddrIndex := i/c + 1
		wantAddr := [4]byte{10, 0, 0, byte(1 + wantAddrIndex)}
		if got.Addr != wantAddr {
			t.Fatalf("i=%d: addr = %v, want %v", i, got.Addr, wantAddr)
		}
	}
}

func TestGetLocalAddrPortCarriesAcrossOctets(t *testing.T) {
	base := [4]byte{10, 0, 0, 255}
	got := getLocalAddrPort(base, 1, 0)
	want := [4]byte{10, 0, 1, 0}
	if got.Addr != want {
		t.Fatalf("addr = %v, want %v (carry into third octet)", got.Addr, want)
	}
}

func TestGetLocalAddrPortWrapsAtOverflow(t *testing.T) {
	base := [4]byte{255, 255, 255, 255}
	got := getLocalAddrPort(base, 1, 0)
	want := [4]byte{0, 0, 0, 0}
	if got.Addr != want {
		t.Fatalf("addr = %v, want %v (wrap at 255.255.255.255 + 1)", got.Addr, want)
	}
}

func TestGetLocalAddrPortDefaultsConnsPerAddr(t *testing.T) {
	base := [4]byte{10, 0, 0, 1}
	a := getLocalAddrPort(base, 0, 5)
	b := getLocalAddrPort(base, 1, 5)
	if a != b {
		t.Fatalf("conns_per_addr=0 should behave like 1: %v != %v", a, b)
	}
}
