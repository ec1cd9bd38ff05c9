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

// call describes a spell invocation a Mutation is requesting: push a
// new frame for Target, populate its locals with Arguments (ownership
// of each handle transfers to the new frame), and, once that frame
// eventually returns, deposit its result into ReturnInto of whichever
// frame is on top of the stack at that point.
type call struct {
	Target     spell.Id
	Arguments  []heap.Handle
	ReturnInto spell.Local
}

// Mutation is what InterpretInstruction hands back to the driver
// loop: a description of how the call stack should change, as opposed
// to a direct mutation of it. Advance, Exit, and Call are independent:
// Advance true means the current frame's own pc should move to the
// next instruction (only meaningful when the frame is not also
// exiting); Exit true means the current frame should be popped,
// carrying Result out to whatever frame is now on top; Call non-nil
// means a new frame should be pushed. Exit and Call both set describes
// a tail call: the current frame is discarded rather than kept
// waiting, and the pushed frame inherits the exiting frame's own
// return slot.
type Mutation struct {
	Advance bool
	Exit    bool
	Result  heap.Handle
	Call    *call
}

// InterpretInstruction executes a single instruction against locals,
// the active frame's local-variable slots, and reports how the call
// stack should change as a result. It never touches the call stack
// itself; Engine.Run owns applying the Mutation it returns.
func InterpretInstruction(instr spell.Instruction, locals []heap.Handle) Mutation {
	switch ins := instr.(type) {
	case spell.Copy:
		old := locals[ins.To]
		locals[ins.To] = locals[ins.From].Clone()
		old.Release()
		return Mutation{Advance: true}

	case spell.InvokeStatic:
		args := cloneLocals(locals, ins.Arguments)
		return Mutation{
			Advance: true,
			Call: &call{
				Target:     spell.Id{Spellbook: ins.Spellbook, Spell: ins.Spell, Arity: len(ins.Arguments)},
				Arguments:  args,
				ReturnInto: ins.Result,
			},
		}

	case spell.InvokeDynamic:
		receiver := locals[ins.Receiver].Clone()
		args := make([]heap.Handle, 0, 1+len(ins.Arguments))
		args = append(args, receiver)
		args = append(args, cloneLocals(locals, ins.Arguments)...)
		return Mutation{
			Advance: true,
			Call: &call{
				Target:     spell.Id{Spellbook: receiver.Enchantment(), Spell: ins.Spell, Arity: len(args)},
				Arguments:  args,
				ReturnInto: ins.Result,
			},
		}

	case spell.Return:
		return Mutation{Exit: true, Result: locals[ins.Result].Clone()}

	default:
		panic("grimoire/vm: unknown instruction type")
	}
}

func cloneLocals(locals []heap.Handle, which []spell.Local) []heap.Handle {
	out := make([]heap.Handle, len(which))
	for i, l := range which {
		out[i] = locals[l].Clone()
	}
	return out
}
