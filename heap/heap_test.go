// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package heap

import (
	"bytes"
	"testing"

	"github.com/emberquill/grimoire/sigil"
)

// TestEmptyHeapCollects is scenario 1: collecting an empty heap frees
// nothing and panics on nothing.
func TestEmptyHeapCollects(t *testing.T) {
	h := New()
	stat := h.CollectGarbage()
	if stat.DataFreed != 0 {
		t.Fatalf("DataFreed = %d, want 0", stat.DataFreed)
	}
}

// TestSingletonLifecycle is scenario 2: an allocated datum survives
// while rooted and is freed once its only handle is released.
func TestSingletonLifecycle(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("leaf")

	handle := h.Allocate(s, nil, []byte("hello"))
	if stat := h.CollectGarbage(); stat.DataFreed != 0 {
		t.Fatalf("rooted datum freed: DataFreed = %d", stat.DataFreed)
	}
	if !bytes.Equal(handle.Auxiliary(), []byte("hello")) {
		t.Fatalf("Auxiliary() = %q, want %q", handle.Auxiliary(), "hello")
	}

	handle.Release()
	stat := h.CollectGarbage()
	if stat.DataFreed != 1 {
		t.Fatalf("DataFreed = %d, want 1", stat.DataFreed)
	}
	if h.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", h.Len())
	}
}

// TestChainRetention is property P5: data reachable only through
// another datum's pointers (no direct external handle) survive as
// long as that other datum is rooted.
func TestChainRetention(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	a := h.Allocate(s, nil, nil)
	b := h.Allocate(s, []Handle{a}, nil)
	a.Release() // a now has no external root, but b.pointers still holds it

	stat := h.CollectGarbage()
	if stat.DataFreed != 0 {
		t.Fatalf("DataFreed = %d, want 0 (a retained via b)", stat.DataFreed)
	}

	b.Release()
	stat = h.CollectGarbage()
	if stat.DataFreed != 2 {
		t.Fatalf("DataFreed = %d, want 2", stat.DataFreed)
	}
}

// TestDiamondRetention is scenario 3: A, B=[A], C=[B], D=[B,C]; dropping
// the external handles to A and C does not free them because they
// remain reachable via D and B. Dropping D's handle then frees exactly
// C and D, since D was the only thing keeping C (and its own self)
// alive; B and A remain reachable through B's own root.
func TestDiamondRetention(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	a := h.Allocate(s, nil, nil)
	b := h.Allocate(s, []Handle{a}, nil)
	c := h.Allocate(s, []Handle{b}, nil)
	d := h.Allocate(s, []Handle{b, c}, nil)

	a.Release()
	c.Release()

	if stat := h.CollectGarbage(); stat.DataFreed != 0 {
		t.Fatalf("DataFreed = %d, want 0", stat.DataFreed)
	}

	d.Release()
	stat := h.CollectGarbage()
	if stat.DataFreed != 2 {
		t.Fatalf("DataFreed = %d, want 2 (C and D)", stat.DataFreed)
	}
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (A and B remain)", h.Len())
	}

	b.Release()
	stat = h.CollectGarbage()
	if stat.DataFreed != 2 {
		t.Fatalf("DataFreed = %d, want 2 (A and B)", stat.DataFreed)
	}
}

// TestAllocateForeignHeapPanics checks that passing Allocate a pointer
// Handle from a different Heap is treated as a programmer error and
// panics.
func TestAllocateForeignHeapPanics(t *testing.T) {
	h1 := New()
	h2 := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	foreign := h1.Allocate(s, nil, nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("Allocate with a foreign handle did not panic")
		}
	}()
	h2.Allocate(s, []Handle{foreign}, nil)
}

// TestDoubleReleasePanics checks that releasing the same Handle twice
// panics.
func TestDoubleReleasePanics(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	handle := h.Allocate(s, nil, nil)
	handle.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("second Release did not panic")
		}
	}()
	handle.Release()
}

// TestPointersReturnsIndependentHandles exercises Handle.Pointers: the
// returned handles are independently rooted and releasing them does
// not affect the parent's own root.
func TestPointersReturnsIndependentHandles(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	a := h.Allocate(s, nil, []byte("a"))
	b := h.Allocate(s, []Handle{a}, nil)
	a.Release()

	got := b.Pointers()
	if len(got) != 1 {
		t.Fatalf("Pointers() returned %d handles, want 1", len(got))
	}
	if !bytes.Equal(got[0].Auxiliary(), []byte("a")) {
		t.Fatalf("Pointers()[0].Auxiliary() = %q, want %q", got[0].Auxiliary(), "a")
	}
	got[0].Release()

	if stat := h.CollectGarbage(); stat.DataFreed != 0 {
		t.Fatalf("DataFreed = %d, want 0 (a still retained by b.pointers)", stat.DataFreed)
	}
}

// TestAuxiliaryLargePayloadRoundTrips exercises the zstd-backed
// compressed chunk path for payloads above compressThreshold.
func TestAuxiliaryLargePayloadRoundTrips(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("blob")

	payload := bytes.Repeat([]byte("grimoire"), 1024)
	handle := h.Allocate(s, nil, payload)
	if got := handle.Auxiliary(); !bytes.Equal(got, payload) {
		t.Fatalf("Auxiliary() round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

// TestChecksumStableAcrossNoOpCollection verifies a collection that
// frees nothing leaves the checksum unchanged.
func TestChecksumStableAcrossNoOpCollection(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	a := h.Allocate(s, nil, []byte("a"))
	_ = h.Allocate(s, []Handle{a}, []byte("b"))

	before := h.Checksum()
	h.CollectGarbage()
	after := h.Checksum()
	if before != after {
		t.Fatalf("Checksum changed across a no-op collection")
	}
}

// TestChecksumChangesAfterFree verifies collecting garbage that
// actually frees something changes the checksum.
func TestChecksumChangesAfterFree(t *testing.T) {
	h := New()
	tab := sigil.NewTable()
	s := tab.Intern("node")

	a := h.Allocate(s, nil, []byte("a"))
	before := h.Checksum()
	a.Release()
	h.CollectGarbage()
	after := h.Checksum()
	if before == after {
		t.Fatalf("Checksum unchanged after a datum was freed")
	}
}
