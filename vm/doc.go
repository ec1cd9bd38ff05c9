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

// Package vm interprets compiled spells against a spell.Database and a
// heap.Heap.
//
// InterpretInstruction is a pure transformer: given an instruction and
// the active frame's locals, it mutates the locals in place (cloning
// and releasing heap.Handle values as each instruction's semantics
// require) and returns a Mutation describing how the call stack itself
// should change. Engine.Run is the reference driver that applies that
// Mutation in a loop: advancing a frame's program counter, pushing a
// frame for a call, or popping one on a return. Because the two
// concerns are split this way, a frame whose Mutation is both an exit
// and a call is handled correctly by Run as a tail call (the exiting
// frame's own return slot is inherited by the callee) even though none
// of the instructions in this instruction set currently produce one.
package vm
