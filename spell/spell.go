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

package spell

import (
	"fmt"

	"github.com/emberquill/grimoire/sigil"
)

// Id identifies a spell by the spellbook it is defined in, its own
// name, and its arity. Arity is part of identity: two spells with the
// same spellbook and name but different arities are distinct spells
// ("overloads by arity").
type Id struct {
	Spellbook sigil.Sigil
	Spell     sigil.Sigil
	Arity     int
}

// Spell is a callable unit: an immutable instruction sequence plus
// the number of local-variable slots a frame invoking it must
// allocate. LocalVariables must be at least Arity, since the first
// Arity locals are filled with the call's arguments.
type Spell struct {
	Instructions   []Instruction
	LocalVariables int
}

// RedefinitionError is returned by Database.Insert when a spell with
// the given Id has already been defined. It is a typed error (rather
// than a bare errors.New) so callers can identify which spell
// collided, matching the "small typed error, wrapped with %w at the
// call site" convention the teacher codebase uses for bytecode and
// compile errors (see vm.bytecodeerror, vm/exprcompile.go).
type RedefinitionError struct {
	Id Id
}

func (e *RedefinitionError) Error() string {
	return fmt.Sprintf("spell already defined: spellbook=%v spell=%v arity=%d",
		e.Id.Spellbook, e.Id.Spell, e.Id.Arity)
}

// Database is an insert-only mapping from Id to Spell.
type Database struct {
	spells map[Id]Spell
}

// NewDatabase creates an empty spell database.
func NewDatabase() *Database {
	return &Database{spells: make(map[Id]Spell)}
}

// Get looks up the spell with the given Id. The second return value
// is false if no spell with that exact spellbook, name, and arity has
// been inserted; in particular, an Id that differs only in Arity from
// an inserted spell is reported as absent (property P9).
func (d *Database) Get(id Id) (Spell, bool) {
	s, ok := d.spells[id]
	return s, ok
}

// Insert adds spell under id. It returns a *RedefinitionError, and
// leaves the existing entry untouched, if id is already present.
func (d *Database) Insert(id Id, s Spell) error {
	if _, ok := d.spells[id]; ok {
		return &RedefinitionError{Id: id}
	}
	d.spells[id] = s
	return nil
}

// Len reports how many spells are currently defined, for diagnostics
// and tests.
func (d *Database) Len() int {
	return len(d.spells)
}
