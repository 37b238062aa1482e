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

func TestConnTableInsertAndTotalConns(t *testing.T) {
	tbl := newConnTable()
	tbl.insert(&connection{dynamic: false})
	tbl.insert(&connection{dynamic: false})
	h := tbl.insert(&connection{dynamic: true})

	if got := tbl.totalConns(); got != 3 {
		t.Fatalf("totalConns() = %d, want 3", got)
	}
	if got := tbl.dynamicLen(); got != 1 {
		t.Fatalf("dynamicLen() = %d, want 1", got)
	}

	if _, ok := tbl.get(h); !ok {
		t.Fatalf("get(%d) = not found, want found", h)
	}
}

func TestConnTableRemoveDecrementsTotalConns(t *testing.T) {
	tbl := newConnTable()
	h1 := tbl.insert(&connection{dynamic: false})
	h2 := tbl.insert(&connection{dynamic: true})

	tbl.remove(h1)
	if got := tbl.totalConns(); got != 1 {
		t.Fatalf("totalConns() after removing static = %d, want 1", got)
	}

	tbl.remove(h2)
	if got := tbl.totalConns(); got != 0 {
		t.Fatalf("totalConns() after removing dynamic = %d, want 0", got)
	}
	if got := tbl.dynamicLen(); got != 0 {
		t.Fatalf("dynamicLen() after removing dynamic = %d, want 0", got)
	}
}

func TestConnTableRemoveIsIdempotent(t *testing.T) {
	tbl := newConnTable()
	h := tbl.insert(&connection{dynamic: true})
	tbl.remove(h)
	tbl.remove(h) // must not panic or double-decrement

	if got := tbl.totalConns(); got != 0 {
		t.Fatalf("totalConns() after double remove = %d, want 0", got)
	}
}

func TestConnTableFreeHandleReuse(t *testing.T) {
	tbl := newConnTable()
	h1 := tbl.insert(&connection{dynamic: false})
	tbl.remove(h1)
	h2 := tbl.insert(&connection{dynamic: false})

	if h2 != h1 {
		t.Errorf("expected freed handle %d to be reused, got new handle %d", h1, h2)
	}
}

func TestConnTableRandomDynamicHandlePicksAmongDynamicOnly(t *testing.T) {
	tbl := newConnTable()
	tbl.insert(&connection{dynamic: false})
	hd1 := tbl.insert(&connection{dynamic: true})
	hd2 := tbl.insert(&connection{dynamic: true})

	seen := map[socketHandle]bool{}
	for i := 0; i < 10; i++ {
		h, ok := tbl.randomDynamicHandle(i)
		if !ok {
			t.Fatalf("randomDynamicHandle(%d) = not ok, want ok", i)
		}
		if h != hd1 && h != hd2 {
			t.Fatalf("randomDynamicHandle(%d) = %d, want one of {%d,%d}", i, h, hd1, hd2)
		}
		seen[h] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both dynamic handles to be reachable via modulo indexing, saw %v", seen)
	}
}

func TestConnTableRandomDynamicHandleEmpty(t *testing.T) {
	tbl := newConnTable()
	tbl.insert(&connection{dynamic: false})

	if _, ok := tbl.randomDynamicHandle(0); ok {
		t.Fatal("randomDynamicHandle on an all-static table returned ok=true, want false")
	}
}

func TestConnTableAllHandlesExcludesRemoved(t *testing.T) {
	tbl := newConnTable()
	h1 := tbl.insert(&connection{dynamic: false})
	h2 := tbl.insert(&connection{dynamic: true})
	tbl.remove(h1)

	handles := tbl.allHandles()
	if len(handles) != 1 || handles[0] != h2 {
		t.Fatalf("allHandles() = %v, want [%d]", handles, h2)
	}
}
