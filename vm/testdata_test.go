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
	"os"
	"testing"

	"sigs.k8s.io/yaml"

	"github.com/emberquill/grimoire/sigil"
	"github.com/emberquill/grimoire/spell"
)

// yamlProgram is the shape of a vm/testdata/*.yaml fixture: a small,
// terse way to express the scenarios in SPEC_FULL.md §8 without
// writing out Go struct literals for every instruction by hand.
type yamlProgram struct {
	Spells []yamlSpell `json:"spells"`
}

type yamlSpell struct {
	Spellbook    string            `json:"spellbook"`
	Name         string            `json:"name"`
	Arity        int               `json:"arity"`
	Locals       int               `json:"locals"`
	Instructions []yamlInstruction `json:"instructions"`
}

type yamlInstruction struct {
	Op        string `json:"op"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Result    int    `json:"result"`
	Spellbook string `json:"spellbook"`
	Spell     string `json:"spell"`
	Receiver  int    `json:"receiver"`
	Arguments []int  `json:"arguments"`
}

// loadFixture parses path, interning every spellbook/spell name it
// mentions into tab, and inserts the compiled spell.Spell values into
// db. It fails the test on any error since a malformed fixture is a
// bug in the test, not a condition under test.
func loadFixture(t *testing.T, tab *sigil.Table, db *spell.Database, path string) {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var prog yamlProgram
	if err := yaml.Unmarshal(raw, &prog); err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}

	for _, s := range prog.Spells {
		id := spell.Id{
			Spellbook: tab.Intern(s.Spellbook),
			Spell:     tab.Intern(s.Name),
			Arity:     s.Arity,
		}
		instructions := make([]spell.Instruction, len(s.Instructions))
		for i, ins := range s.Instructions {
			instructions[i] = compileInstruction(t, tab, ins)
		}
		body := spell.Spell{Instructions: instructions, LocalVariables: s.Locals}
		if err := db.Insert(id, body); err != nil {
			t.Fatalf("inserting %s/%s: %v", s.Spellbook, s.Name, err)
		}
	}
}

func compileInstruction(t *testing.T, tab *sigil.Table, ins yamlInstruction) spell.Instruction {
	t.Helper()
	switch ins.Op {
	case "copy":
		return spell.Copy{From: spell.Local(ins.From), To: spell.Local(ins.To)}
	case "invoke_static":
		return spell.InvokeStatic{
			Result:    spell.Local(ins.Result),
			Spellbook: tab.Intern(ins.Spellbook),
			Spell:     tab.Intern(ins.Spell),
			Arguments: toLocals(ins.Arguments),
		}
	case "invoke_dynamic":
		return spell.InvokeDynamic{
			Result:    spell.Local(ins.Result),
			Spell:     tab.Intern(ins.Spell),
			Receiver:  spell.Local(ins.Receiver),
			Arguments: toLocals(ins.Arguments),
		}
	case "return":
		return spell.Return{Result: spell.Local(ins.Result)}
	default:
		t.Fatalf("unknown fixture instruction %q", ins.Op)
		return nil
	}
}

func toLocals(args []int) []spell.Local {
	out := make([]spell.Local, len(args))
	for i, a := range args {
		out[i] = spell.Local(a)
	}
	return out
}
