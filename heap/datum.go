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
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/emberquill/grimoire/sigil"
)

// datum is the heap-internal record. It is immutable once constructed
// except for roots and mark, per the data model. pointers holds raw
// (non-rooted) edges to other data in the same heap: these edges do
// not themselves contribute to roots, matching the Rust original's
// distinction between a root count (external) and a pointer edge
// (internal graph structure).
type datum struct {
	enchantment sigil.Sigil
	pointers    []*datum
	chunk       chunk // backing storage for auxiliary, possibly compressed
	roots       int
	mark        bool
}

// auxiliary returns a fresh copy of the datum's opaque payload,
// decompressing it first if it was stored compressed. A copy is
// returned (rather than aliasing internal storage) so a caller can
// never observe or cause mutation of what the data model promises is
// immutable.
func (d *datum) auxiliary() []byte {
	raw := d.chunk.bytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// ref is the non-aliasable root claim a Handle represents. Each
// Handle obtained from Allocate, Clone, or Pointers owns a distinct
// *ref, so copying a Handle value never silently duplicates or loses
// a root claim the way copying a bare pointer would.
type ref struct {
	d        *datum
	released int32
}

func (r *ref) release(onLeak func(string, ...any)) bool {
	if !atomic.CompareAndSwapInt32(&r.released, 0, 1) {
		return false
	}
	r.d.roots--
	return true
}

func finalizeRef(r *ref) {
	if atomic.LoadInt32(&r.released) == 0 {
		errorf("handle for enchantment %v garbage collected without Release", r.d.enchantment)
	}
}

// newRef creates a ref for d, incrementing its root count, and
// arranges for the development-time leak check described in
// SPEC_FULL.md ("Root counting via handles").
func newRef(d *datum) *ref {
	d.roots++
	r := &ref{d: d}
	runtime.SetFinalizer(r, finalizeRef)
	return r
}

// Handle is an external reference to a datum. While any Handle to a
// datum exists, that datum will not be freed by Heap.CollectGarbage.
type Handle struct {
	heap *Heap
	r    *ref
}

func (h Handle) checkLive() {
	if h.r == nil {
		panic("grimoire/heap: use of a zero-value Handle")
	}
	if atomic.LoadInt32(&h.r.released) != 0 {
		panic("grimoire/heap: use of a released Handle")
	}
	if h.heap != nil && h.heap.closed {
		panic("grimoire/heap: use of a Handle from a closed Heap")
	}
}

// Enchantment returns the sigil naming the datum's type/dispatch
// class.
func (h Handle) Enchantment() sigil.Sigil {
	h.checkLive()
	return h.r.d.enchantment
}

// Pointers returns one freshly rooted Handle per pointer stored in
// the datum, in the order they were supplied to Allocate. Each
// returned Handle must eventually be released by the caller like any
// other Handle.
func (h Handle) Pointers() []Handle {
	h.checkLive()
	d := h.r.d
	out := make([]Handle, len(d.pointers))
	for i, p := range d.pointers {
		out[i] = Handle{heap: h.heap, r: newRef(p)}
	}
	return out
}

// Auxiliary returns a copy of the datum's opaque byte payload.
func (h Handle) Auxiliary() []byte {
	h.checkLive()
	return h.r.d.auxiliary()
}

// Clone creates a new Handle to the same datum, incrementing its root
// count.
func (h Handle) Clone() Handle {
	h.checkLive()
	return Handle{heap: h.heap, r: newRef(h.r.d)}
}

// Release drops this root claim, decrementing the datum's root count.
// Calling Release more than once on values derived from the same
// Allocate/Clone/Pointers call is a programmer error and panics, the
// same way a double-free would be a programmer error in the source
// this runtime is modeled on.
func (h Handle) Release() {
	h.checkLive()
	if !h.r.release(errorf) {
		panic("grimoire/heap: Handle released more than once")
	}
}

// String renders a debug form matching the convention described in
// SPEC_FULL.md §6: heap.allocate(<enchantment>, <pointers>, <auxiliary>).
// It is diagnostic only and not part of the stable surface.
func (h Handle) String() string {
	h.checkLive()
	d := h.r.d
	return fmt.Sprintf("heap.allocate(%v, %d pointer(s), %d byte(s))",
		d.enchantment, len(d.pointers), len(d.chunk.bytes()))
}
