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
	"context"
	"fmt"

	"github.com/emberquill/grimoire/heap"
	"github.com/emberquill/grimoire/spell"
)

// MissingSpellError is returned by Engine.Run when a call (the entry
// call or one reached via InvokeStatic/InvokeDynamic) names a spell
// that spell.Database has no definition for.
type MissingSpellError struct {
	Id spell.Id
}

func (e *MissingSpellError) Error() string {
	return fmt.Sprintf("no such spell: spellbook=%v spell=%v arity=%d (fingerprint %016x)",
		e.Id.Spellbook, e.Id.Spell, e.Id.Arity, fingerprint(e.Id))
}

// Engine is the reference driver: it repeatedly asks
// InterpretInstruction for a Mutation and applies it to a call stack
// until the entry call's frame exits.
type Engine struct {
	db    *spell.Database
	cache dispatchCache
}

// NewEngine creates an Engine that resolves calls against db.
func NewEngine(db *spell.Database) *Engine {
	return &Engine{db: db}
}

// Run interprets entry with args bound to its first len(args) locals,
// and every other local slot in every frame initialized to a clone of
// empty. It returns the handle the entry call's Return instruction
// produced.
//
// ctx is checked between instructions (not mid-instruction, since
// none of the four instructions here block): a cancelled context
// aborts the run, releasing every handle still held by the call
// stack, and Run returns ctx.Err().
func (e *Engine) Run(ctx context.Context, entry spell.Id, args []heap.Handle, empty heap.Handle) (heap.Handle, error) {
	body, ok := e.cache.resolve(e.db, entry)
	if !ok {
		releaseAll(args)
		return heap.Handle{}, &MissingSpellError{Id: entry}
	}
	if len(args) != entry.Arity {
		releaseAll(args)
		return heap.Handle{}, fmt.Errorf("grimoire/vm: Run called with %d argument(s) for an arity-%d spell", len(args), entry.Arity)
	}

	var stack callStack
	stack.push(newFrame(entry, body, args, empty, 0))

	for {
		select {
		case <-ctx.Done():
			errorf("grimoire/vm: run of %v cancelled with %d frame(s) still on the stack", entry, len(stack.frames))
			stack.unwind()
			return heap.Handle{}, ctx.Err()
		default:
		}

		top := stack.top()
		if top.done() {
			// A well-formed spell always ends in a Return; reaching
			// the end of its instructions without one is a bug in
			// the spell, not a runtime condition to recover from.
			panic(fmt.Sprintf("grimoire/vm: spell %v fell off the end of its instructions", top.id))
		}

		mut := InterpretInstruction(top.instruction(), top.locals)

		if mut.Exit {
			returnInto := top.returnInto
			exiting := stack.pop()
			exiting.releaseLocals()

			if mut.Call != nil {
				// Tail call: the frame that just exited is gone for
				// good; the callee inherits its return slot directly.
				callee, ok := e.cache.resolve(e.db, mut.Call.Target)
				if !ok {
					releaseAll(mut.Call.Arguments)
					stack.unwind()
					return heap.Handle{}, &MissingSpellError{Id: mut.Call.Target}
				}
				stack.push(newFrame(mut.Call.Target, callee, mut.Call.Arguments, empty, returnInto))
				continue
			}

			if stack.empty() {
				return mut.Result, nil
			}
			caller := stack.top()
			old := caller.locals[returnInto]
			caller.locals[returnInto] = mut.Result
			old.Release()
			continue
		}

		if mut.Call != nil {
			if mut.Advance {
				top.pc++
			}
			callee, ok := e.cache.resolve(e.db, mut.Call.Target)
			if !ok {
				releaseAll(mut.Call.Arguments)
				stack.unwind()
				return heap.Handle{}, &MissingSpellError{Id: mut.Call.Target}
			}
			stack.push(newFrame(mut.Call.Target, callee, mut.Call.Arguments, empty, mut.Call.ReturnInto))
			continue
		}

		if mut.Advance {
			top.pc++
		}
	}
}

func releaseAll(handles []heap.Handle) {
	for _, h := range handles {
		h.Release()
	}
}
