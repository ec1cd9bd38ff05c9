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

package vm

import (
	"encoding/binary"

	"github.com/dchest/siphash"

	"github.com/emberquill/grimoire/spell"
)

// Fixed, arbitrary siphash key. The cache is process-local and never
// persisted, so there is no need for the key to be secret or to
// change between runs.
const (
	dispatchKey0 = 0x656d6265726f7421
	dispatchKey1 = 0x6372756e6368656d
)

func fingerprint(id spell.Id) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id.Spellbook))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id.Spell))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(id.Arity))
	return siphash.Hash(dispatchKey0, dispatchKey1, buf[:])
}

// dispatchCache is a small direct-mapped inline cache from spell.Id to
// its resolved body, so that a call site invoking the same spell
// repeatedly (the common case for both InvokeStatic and a
// monomorphic InvokeDynamic call site) does not pay for a
// spell.Database lookup on every invocation.
type dispatchCache struct {
	entries [256]dispatchEntry
}

type dispatchEntry struct {
	valid bool
	id    spell.Id
	body  spell.Spell
}

func (c *dispatchCache) resolve(db *spell.Database, id spell.Id) (spell.Spell, bool) {
	slot := &c.entries[fingerprint(id)%uint64(len(c.entries))]
	if slot.valid && slot.id == id {
		return slot.body, true
	}
	body, ok := db.Get(id)
	if !ok {
		return spell.Spell{}, false
	}
	*slot = dispatchEntry{valid: true, id: id, body: body}
	return body, true
}
