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
	"github.com/emberquill/grimoire/heap"
	"github.com/emberquill/grimoire/spell"
)

// frame is one activation of a spell: its instruction sequence, the
// handles bound to its local-variable slots, the index of the next
// instruction to run, and the local slot in its caller that its
// result should be deposited into.
//
// returnInto is meaningless for the bottommost frame (the one created
// for Engine.Run's entry spell), which has no caller; it is simply
// never read in that case.
type frame struct {
	id         spell.Id
	body       spell.Spell
	locals     []heap.Handle
	pc         int
	returnInto spell.Local
}

// newFrame builds the initial activation for id, filling its first
// len(args) locals with args (ownership of each handle transfers into
// the frame) and every remaining local with a clone of empty, which
// represents the "nothing yet" value since every local must always
// hold some valid, releasable handle.
func newFrame(id spell.Id, body spell.Spell, args []heap.Handle, empty heap.Handle, returnInto spell.Local) frame {
	locals := make([]heap.Handle, body.LocalVariables)
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = empty.Clone()
	}
	return frame{id: id, body: body, locals: locals, returnInto: returnInto}
}

func (f *frame) instruction() spell.Instruction {
	return f.body.Instructions[f.pc]
}

func (f *frame) done() bool {
	return f.pc >= len(f.body.Instructions)
}

// releaseLocals releases every local still held by the frame. Callers
// that have already extracted (and cloned out) a value they intend to
// keep, such as a Return instruction's result, must do so before
// calling releaseLocals.
func (f *frame) releaseLocals() {
	for _, h := range f.locals {
		h.Release()
	}
}

// callStack is a LIFO sequence of frames, oldest (the entry call) at
// index 0.
type callStack struct {
	frames []frame
}

func (s *callStack) push(f frame) {
	s.frames = append(s.frames, f)
}

func (s *callStack) pop() frame {
	n := len(s.frames) - 1
	f := s.frames[n]
	s.frames = s.frames[:n]
	return f
}

func (s *callStack) top() *frame {
	return &s.frames[len(s.frames)-1]
}

func (s *callStack) empty() bool {
	return len(s.frames) == 0
}

// unwind releases every local in every remaining frame. Used when
// Run must abort early (a missing spell, a cancelled context) and the
// handles still held by frames on the stack would otherwise leak.
func (s *callStack) unwind() {
	for i := range s.frames {
		s.frames[i].releaseLocals()
	}
	s.frames = nil
}
