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

// Package sigil implements an interner for opaque identifiers
// ("sigils") used throughout the runtime as the equality-by-identity
// key for enchantments, spellbooks, and spell names.
package sigil

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dchest/siphash"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Sigil is an interned identifier. Two sigils are equal if and only
// if they were produced by the same Table from equal names. A sigil
// produced by one Table must never be passed to a different Table;
// doing so is undefined (see Table.Generation for a diagnostic aid).
type Sigil uint32

// String renders the sigil as "sigil#" followed by its number. It does not
// attempt to look up a name, since a Sigil alone does not know which
// Table produced it.
func (s Sigil) String() string {
	return "sigil#" + itoa(uint32(s))
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Fixed, arbitrary siphash key. Fingerprint is a diagnostic aid, not
// a security boundary, so the key has no need to be secret.
const (
	fingerprintKey0 = 0x736967696c0a7369
	fingerprintKey1 = 0x656d6265726f2121
)

// Fingerprint computes a 128-bit, table-independent digest of name.
// Unlike a Sigil, which is only meaningful relative to the Table that
// produced it, a Fingerprint of the same bytes is always equal across
// tables and processes. It exists for diagnostics and tests that want
// to compare names without depending on map iteration order or on
// two tables having interned in the same sequence.
func Fingerprint(name []byte) (lo, hi uint64) {
	return siphash.Hash128(fingerprintKey0, fingerprintKey1, name)
}

var generationCounter uint64

// Table is a sigil database: an ordered sequence of names and the
// inverse mapping from name to Sigil. Names are never removed; the
// table grows monotonically for the lifetime of the process that
// owns it.
//
// Like ion.Symtab in the teacher codebase, Table keeps a reusable
// backing slice (interned) and a watermark (aliased) recording how
// much of that slice has been handed out via Alias, so a clone does
// not need to immediately reallocate.
type Table struct {
	interned []string
	aliased  int
	toindex  map[string]int
	memsize  int
	gen      uint64
}

// NewTable creates an empty sigil database, distinct from every
// other Table that has ever existed in this process.
func NewTable() *Table {
	t := &Table{toindex: make(map[string]int)}
	t.gen = atomic.AddUint64(&generationCounter, 1)
	return t
}

// Generation returns a process-unique id assigned to this table at
// construction. It plays no role in sigil equality; it exists purely
// so that diagnostic output (Table.String) can name which table it
// describes.
func (t *Table) Generation() uint64 {
	return t.gen
}

// Intern interns x, returning the Sigil associated with it. Repeated
// calls with an equal string return the same Sigil.
func (t *Table) Intern(x string) Sigil {
	if i, ok := t.toindex[x]; ok {
		return Sigil(i)
	}
	id := len(t.interned)
	t.toindex[x] = id
	t.append(x)
	t.memsize += len(x)
	return Sigil(id)
}

// InternBytes behaves like Intern but accepts a []byte, avoiding an
// allocation on the lookup path when x is already interned.
func (t *Table) InternBytes(x []byte) Sigil {
	if i, ok := t.toindex[string(x)]; ok {
		return Sigil(i)
	}
	return t.Intern(string(x))
}

// Name returns the string associated with sigil, or ("", false) if
// sigil was not produced by this table.
func (t *Table) Name(s Sigil) (string, bool) {
	id := int(s)
	if id < 0 || id >= len(t.interned) {
		return "", false
	}
	return t.interned[id], true
}

// Symbolize returns the sigil already associated with x, without
// interning it, or (0, false) if x has never been interned.
func (t *Table) Symbolize(x string) (Sigil, bool) {
	i, ok := t.toindex[x]
	return Sigil(i), ok
}

// MaxID returns one past the highest sigil ever produced by this
// table (equivalently, the number of interned names).
func (t *Table) MaxID() int {
	return len(t.interned)
}

// MemSize reports the approximate number of bytes occupied by
// interned names, for diagnostics.
func (t *Table) MemSize() int {
	return t.memsize
}

func (t *Table) append(v string) {
	if i := len(t.interned); i < cap(t.interned) {
		t.interned = t.interned[:i+1]
		t.set(i, v)
	} else {
		t.interned = append(t.interned, v)
		t.aliased = 0
	}
}

// set writes v at index i, first cloning the backing array if i falls
// within a prefix already handed out by Alias. Without this guard, a
// caller holding a slice from Alias would observe its contents change
// out from under it the next time the table grows in place.
func (t *Table) set(i int, v string) {
	if t.interned[i] == v {
		return
	}
	if i < t.aliased {
		t.interned = slices.Clone(t.interned)
		t.aliased = 0
	}
	t.interned[i] = v
}

// Alias returns a read-only view of every name currently interned,
// in sigil order (name[i] is the name of Sigil(i)). The returned
// slice must not be mutated; Table takes care not to clobber any
// previously aliased prefix on subsequent growth.
func (t *Table) Alias() []string {
	n := len(t.interned)
	if n > t.aliased {
		t.aliased = n
	}
	return t.interned[:n:n]
}

// String renders every name currently interned, in sigil order, for
// debug logging. It reads through Alias rather than Names since the
// view is only needed for the duration of this call and does not
// need to be an independent copy.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString("sigil.Table(gen=")
	b.WriteString(strconv.FormatUint(t.gen, 10))
	b.WriteByte(')')
	for i, name := range t.Alias() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(name)
	}
	return b.String()
}

// Names returns an independent copy of every interned name, safe for
// a caller to mutate or retain past the next Intern call, since it
// holds no reference into Table's internal storage.
func (t *Table) Names() []string {
	return slices.Clone(t.interned)
}

// CloneInto performs a deep copy of t into o, reusing o's existing
// backing storage where the two tables already share a prefix of
// interned names. This mirrors ion.Symtab.CloneInto in the teacher
// codebase, which snapshots a mutable symbol table cheaply by
// skipping the common prefix instead of reallocating wholesale.
func (t *Table) CloneInto(o *Table) {
	i := 0
	for i < len(o.interned) && i < len(t.interned) && t.interned[i] == o.interned[i] {
		i++
	}
	if o.toindex == nil {
		o.toindex = make(map[string]int, len(t.interned))
	}
	for ; i < len(o.interned); i++ {
		str := o.interned[i]
		if old, ok := o.toindex[str]; ok && old == i {
			delete(o.toindex, str)
		}
	}
	o.interned = o.interned[:minInt(len(o.interned), len(t.interned))]
	for i := range o.interned {
		o.set(i, t.interned[i])
		o.toindex[o.interned[i]] = i
	}
	for len(o.interned) < len(t.interned) {
		x := t.interned[len(o.interned)]
		o.toindex[x] = len(o.interned)
		o.append(x)
	}
	o.memsize = t.memsize
	if o.gen == 0 {
		o.gen = atomic.AddUint64(&generationCounter, 1)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Snapshot returns an independent copy of t: mutating the result, or
// continuing to intern names into t, never affects the other. It is
// used by tests that need to compare a table's contents before and
// after an operation.
func (t *Table) Snapshot() *Table {
	return &Table{
		interned: slices.Clone(t.interned),
		toindex:  maps.Clone(t.toindex),
		memsize:  t.memsize,
		gen:      atomic.AddUint64(&generationCounter, 1),
	}
}
