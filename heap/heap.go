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

// Package heap implements the handle-counted, mark-and-sweep store
// that backs a running interpreter: data are allocated once, never
// mutated, and may only point to data allocated earlier in the same
// heap. CollectGarbage reclaims anything no longer reachable from a
// live Handle.
package heap

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/emberquill/grimoire/sigil"
)

// Statistics reports the outcome of a CollectGarbage call.
type Statistics struct {
	DataFreed int
}

// Heap owns a sequence of data and the arena their auxiliary payloads
// are allocated from. Data are stored in allocation order; index i
// may only point to data at index < i (the "no forward and no cyclic
// pointers" invariant), which is what lets CollectGarbage run as a
// single reverse pass rather than a general graph traversal.
type Heap struct {
	id     uuid.UUID
	data   []*datum
	arena  *arena
	closed bool
}

// New creates an empty heap. Each heap has its own identity (visible
// via String, for log correlation when a process runs more than one
// interpreter) the same way the teacher codebase tags each query plan
// or tenant with a uuid.UUID.
func New() *Heap {
	return &Heap{id: uuid.New(), arena: newArena()}
}

// Id returns the heap's debug identity.
func (h *Heap) Id() uuid.UUID {
	return h.id
}

func (h *Heap) String() string {
	return fmt.Sprintf("heap %s (%d live)", h.id, len(h.data))
}

func (h *Heap) checkOpen() {
	if h.closed {
		panic("grimoire/heap: use of a closed Heap")
	}
}

// Allocate creates a new datum tagged with enchantment, pointing at
// the data behind pointers, carrying auxiliary as its opaque payload,
// and returns a Handle holding the single root this call creates.
//
// Every element of pointers must be a live Handle obtained from this
// same Heap; passing a handle from a different heap, or one that has
// already been released, is a programmer error and panics, the same
// way an out-of-bounds local is a programmer error for the
// interpreter (see the vm package).
func (h *Heap) Allocate(enchantment sigil.Sigil, pointers []Handle, auxiliary []byte) Handle {
	h.checkOpen()

	pp := make([]*datum, len(pointers))
	for i, p := range pointers {
		if p.heap != h {
			panic("grimoire/heap: Allocate given a pointer from a different Heap")
		}
		p.checkLive()
		pp[i] = p.r.d
	}

	d := &datum{
		enchantment: enchantment,
		pointers:    pp,
		chunk:       newChunk(auxiliary, h.arena),
	}
	h.data = append(h.data, d)
	return Handle{heap: h, r: newRef(d)}
}

// CollectGarbage frees every datum that is not reachable from a
// positive root count, preserving the relative order of the data that
// survive.
//
// The scan runs once over the data in reverse allocation order.
// Because pointers only ever target earlier data, by the time a datum
// is visited every datum that could have marked it reachable (i.e.
// every later datum) has already been visited and has already
// propagated its mark, so liveness for every datum is known after a
// single backward sweep with no fixed-point iteration.
//
// Deciding which data survive is therefore a single reverse pass, but
// physically removing the dead ones is done as a second, separate
// compaction pass rather than popping the underlying slice as marks
// are computed: a later-positioned datum can be alive while an
// earlier one is dead and unrelated to it, and in that case naively
// popping the slice's tail during the marking pass would discard the
// wrong element. Splitting "decide" from "remove" avoids that.
func (h *Heap) CollectGarbage() Statistics {
	h.checkOpen()

	n := len(h.data)
	dead := make([]bool, n)
	for i := n - 1; i >= 0; i-- {
		d := h.data[i]
		if d.roots > 0 {
			d.mark = true
		}
		if d.mark {
			for _, p := range d.pointers {
				p.mark = true
			}
			d.mark = false
		} else {
			dead[i] = true
		}
	}

	write := 0
	freed := 0
	for read := 0; read < n; read++ {
		if dead[read] {
			h.data[read].chunk.release(h.arena)
			h.data[read] = nil
			freed++
			continue
		}
		h.data[write] = h.data[read]
		write++
	}
	h.data = h.data[:write]

	return Statistics{DataFreed: freed}
}

// Len reports how many data are currently live.
func (h *Heap) Len() int {
	return len(h.data)
}

// Close releases the heap's arena and marks it unusable. Handles
// obtained from a closed heap must not be used again; doing so panics
// via the same liveness checks Handle methods already perform.
func (h *Heap) Close() {
	h.checkOpen()
	h.closed = true
	h.arena = nil
	h.data = nil
}
