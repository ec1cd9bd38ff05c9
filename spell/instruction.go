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

// Package spell defines the bytecode instruction set, the callable
// unit ("spell") that instructions are grouped into, and the
// insert-only database that maps a spell's identity to its body.
package spell

import "github.com/emberquill/grimoire/sigil"

// Local is an index into a stack frame's local-variable array.
type Local uint32

// Instruction is a closed sum over the four instruction shapes the
// interpreter understands. It is represented as an interface with an
// unexported marker method, the same closed-variant-via-unexported-
// method idiom the teacher codebase uses for expr.Node, rather than
// as a class hierarchy.
type Instruction interface {
	isInstruction()
}

// Copy reads the handle at local From and writes it to local To.
type Copy struct {
	From Local
	To   Local
}

func (Copy) isInstruction() {}

// InvokeStatic calls the spell named by (Spellbook, Spell, len(Arguments))
// with the handles at the given argument locals, depositing the
// return value at local Result.
type InvokeStatic struct {
	Result    Local
	Spellbook sigil.Sigil
	Spell     sigil.Sigil
	Arguments []Local
}

func (InvokeStatic) isInstruction() {}

// InvokeDynamic calls the spell named by (enchantment(Receiver), Spell,
// 1+len(Arguments)), passing the receiver as argument 0 followed by
// the handles at Arguments, depositing the return value at local
// Result.
type InvokeDynamic struct {
	Result    Local
	Spell     sigil.Sigil
	Receiver  Local
	Arguments []Local
}

func (InvokeDynamic) isInstruction() {}

// Return exits the active frame, returning the handle at local Result
// to the caller.
type Return struct {
	Result Local
}

func (Return) isInstruction() {}
