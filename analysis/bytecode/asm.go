// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eerok/scala/analysis/lattice"
)

// Assemble parses the line-oriented textual class format into parsed classes.
// The format is the one Disassemble/DisassembleClass produce; it exists for
// tests and the jopt driver, real class files are parsed by the repository
// collaborator.
func Assemble(src string) ([]*Class, error) {
	a := &assembler{}
	for lineNo, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		if err := a.line(strings.Fields(line)); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
	}
	if a.curClass != nil {
		return nil, fmt.Errorf("unterminated class %s", a.curClass.Name)
	}
	return a.classes, nil
}

// AssembleOne is Assemble for sources holding exactly one class.
func AssembleOne(src string) (*Class, error) {
	cs, err := Assemble(src)
	if err != nil {
		return nil, err
	}
	if len(cs) != 1 {
		return nil, fmt.Errorf("expected one class, got %d", len(cs))
	}
	return cs[0], nil
}

type assembler struct {
	classes  []*Class
	curClass *Class
	curMeth  *Method
	labels   map[string]*Instruction
	defined  map[string]bool
}

func (a *assembler) line(fields []string) error {
	if a.curMeth != nil {
		return a.methodLine(fields)
	}
	if a.curClass != nil {
		return a.classLine(fields)
	}
	if fields[0] != "class" {
		return fmt.Errorf("expected 'class', got %q", fields[0])
	}
	if len(fields) < 4 || fields[2] != "extends" {
		return fmt.Errorf("class line must be: class NAME extends SUPER [flags=...]")
	}
	c := &Class{Name: fields[1], SuperName: fields[3]}
	c.Access = parseFlags(fields[4:])
	a.curClass = c
	return nil
}

func (a *assembler) classLine(fields []string) error {
	switch fields[0] {
	case "end":
		a.classes = append(a.classes, a.curClass)
		a.curClass = nil
		return nil
	case "field":
		if len(fields) < 3 {
			return fmt.Errorf("field line must be: field NAME DESC [flags=...]")
		}
		if _, err := ParseFieldDesc(fields[2]); err != nil {
			return err
		}
		a.curClass.Fields = append(a.curClass.Fields, &Field{
			Name:   fields[1],
			Desc:   fields[2],
			Access: parseFlags(fields[3:]),
		})
		return nil
	case "interface":
		if len(fields) != 2 {
			return fmt.Errorf("interface line must be: interface NAME")
		}
		a.curClass.Interfaces = append(a.curClass.Interfaces, fields[1])
		return nil
	case "method":
		if len(fields) < 3 {
			return fmt.Errorf("method line must be: method NAME DESC [flags=...]")
		}
		if _, err := ParseMethodDesc(fields[2]); err != nil {
			return err
		}
		a.curMeth = &Method{
			Name:   fields[1],
			Desc:   fields[2],
			Access: parseFlags(fields[3:]),
		}
		a.labels = map[string]*Instruction{}
		a.defined = map[string]bool{}
		return nil
	default:
		return fmt.Errorf("unexpected %q inside class", fields[0])
	}
}

func (a *assembler) methodLine(fields []string) error {
	m := a.curMeth
	switch fields[0] {
	case "end":
		for name := range a.labels {
			if !a.defined[name] {
				return fmt.Errorf("label %s referenced but never placed", name)
			}
		}
		a.finishMethod()
		return nil
	case "maxstack":
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		m.MaxStack = n
		return nil
	case "maxlocals":
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		m.MaxLocals = n
		return nil
	case "trycatch":
		if len(fields) < 4 {
			return fmt.Errorf("trycatch line must be: trycatch START END HANDLER [CATCH]")
		}
		catch := ""
		if len(fields) > 4 && fields[4] != "*" {
			catch = fields[4]
		}
		m.TryCatch = append(m.TryCatch, &TryCatch{
			Start:     a.label(fields[1]),
			End:       a.label(fields[2]),
			Handler:   a.label(fields[3]),
			CatchType: catch,
		})
		return nil
	case "localvar":
		if len(fields) != 6 {
			return fmt.Errorf("localvar line must be: localvar NAME DESC SLOT START END")
		}
		slot, err := strconv.Atoi(fields[3])
		if err != nil {
			return err
		}
		m.LocalVars = append(m.LocalVars, &LocalVar{
			Name:  fields[1],
			Desc:  fields[2],
			Slot:  slot,
			Start: a.label(fields[4]),
			End:   a.label(fields[5]),
		})
		return nil
	}
	ins, err := a.instruction(fields)
	if err != nil {
		return err
	}
	m.Instrs = append(m.Instrs, ins)
	return nil
}

// label returns the (possibly forward-declared) label instruction for a name.
func (a *assembler) label(name string) *Instruction {
	if l, ok := a.labels[name]; ok {
		return l
	}
	l := NewLabel()
	a.labels[name] = l
	return l
}

//gocyclo:ignore
func (a *assembler) instruction(fields []string) (*Instruction, error) {
	op, ok := opByName(fields[0])
	if !ok {
		return nil, fmt.Errorf("unknown mnemonic %q", fields[0])
	}
	arg := func(i int) (string, error) {
		if i >= len(fields) {
			return "", fmt.Errorf("%s: missing operand %d", fields[0], i)
		}
		return fields[i], nil
	}
	switch op {
	case OpLabel:
		name, err := arg(1)
		if err != nil {
			return nil, err
		}
		if a.defined[name] {
			return nil, fmt.Errorf("label %s placed twice", name)
		}
		a.defined[name] = true
		return a.label(name), nil
	case OpLine:
		s, err := arg(1)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpLine, Line: n}, nil
	case OpConst:
		kt, err := arg(1)
		if err != nil {
			return nil, err
		}
		lit, err := arg(2)
		if err != nil {
			return nil, err
		}
		k, err := parseKindToken(kt)
		if err != nil {
			return nil, err
		}
		v, err := parseLiteral(k, lit)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpConst, Kind: k, Value: v}, nil
	case OpConstNull, OpPop, OpPop2, OpDup, OpDupX1, OpSwap,
		OpArrayLength, OpThrow, OpMonitorEnter, OpMonitorExit:
		return &Instruction{Op: op}, nil
	case OpLoad, OpStore:
		kt, err := arg(1)
		if err != nil {
			return nil, err
		}
		st, err := arg(2)
		if err != nil {
			return nil, err
		}
		k, err := parseKindToken(kt)
		if err != nil {
			return nil, err
		}
		slot, err := strconv.Atoi(st)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: op, Kind: k, Var: slot}, nil
	case OpIinc:
		st, err := arg(1)
		if err != nil {
			return nil, err
		}
		dt, err := arg(2)
		if err != nil {
			return nil, err
		}
		slot, err := strconv.Atoi(st)
		if err != nil {
			return nil, err
		}
		delta, err := strconv.ParseInt(dt, 10, 64)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpIinc, Var: slot, Value: delta}, nil
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpNeg, OpShl, OpShr, OpUshr,
		OpAnd, OpOr, OpXor, OpCmp, OpNewArray, OpArrayLoad, OpArrayStore, OpReturn:
		kt, err := arg(1)
		if err != nil {
			return nil, err
		}
		k, err := parseKindToken(kt)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: op, Kind: k}, nil
	case OpConvert:
		ft, err := arg(1)
		if err != nil {
			return nil, err
		}
		tt, err := arg(2)
		if err != nil {
			return nil, err
		}
		from, err := parseKindToken(ft)
		if err != nil {
			return nil, err
		}
		to, err := parseKindToken(tt)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpConvert, Kind: from, Kind2: to}, nil
	case OpGetStatic, OpPutStatic, OpGetField, OpPutField,
		OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic, OpInvokeInterface, OpInvokeDynamic:
		owner, err := arg(1)
		if err != nil {
			return nil, err
		}
		name, err := arg(2)
		if err != nil {
			return nil, err
		}
		desc, err := arg(3)
		if err != nil {
			return nil, err
		}
		if op.IsInvoke() {
			if _, err := ParseMethodDesc(desc); err != nil {
				return nil, err
			}
		} else if _, err := ParseFieldDesc(desc); err != nil {
			return nil, err
		}
		return &Instruction{Op: op, Sym: &SymbolRef{Owner: owner, Name: name, Desc: desc}}, nil
	case OpNew, OpCheckCast, OpInstanceOf:
		owner, err := arg(1)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: op, Sym: &SymbolRef{Owner: owner}}, nil
	case OpGoto, OpIfNull, OpIfNonNull:
		name, err := arg(1)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: op, Target: a.label(name)}, nil
	case OpIfZero:
		ct, err := arg(1)
		if err != nil {
			return nil, err
		}
		name, err := arg(2)
		if err != nil {
			return nil, err
		}
		cond, err := parseCond(ct)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpIfZero, Cond: cond, Target: a.label(name)}, nil
	case OpIfCmp:
		ct, err := arg(1)
		if err != nil {
			return nil, err
		}
		kt, err := arg(2)
		if err != nil {
			return nil, err
		}
		name, err := arg(3)
		if err != nil {
			return nil, err
		}
		cond, err := parseCond(ct)
		if err != nil {
			return nil, err
		}
		k, err := parseKindToken(kt)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpIfCmp, Cond: cond, Kind: k, Target: a.label(name)}, nil
	case OpSwitch:
		if len(fields) < 3 || fields[1] != "default" {
			return nil, fmt.Errorf("switch line must be: switch default L [case K L]...")
		}
		ins := &Instruction{Op: OpSwitch, Target: a.label(fields[2])}
		rest := fields[3:]
		for len(rest) > 0 {
			if len(rest) < 3 || rest[0] != "case" {
				return nil, fmt.Errorf("switch cases must be: case K L")
			}
			k, err := strconv.ParseInt(rest[1], 10, 64)
			if err != nil {
				return nil, err
			}
			ins.Keys = append(ins.Keys, k)
			ins.Targets = append(ins.Targets, a.label(rest[2]))
			rest = rest[3:]
		}
		return ins, nil
	}
	return nil, fmt.Errorf("unhandled mnemonic %q", fields[0])
}

// finishMethod attaches the method and fills in MaxLocals when no directive
// set it.
func (a *assembler) finishMethod() {
	m := a.curMeth
	if m.MaxLocals == 0 {
		d, err := ParseMethodDesc(m.Desc)
		if err == nil {
			m.MaxLocals = d.ArgSlots(m.Access.IsStatic())
		}
		for _, ins := range m.Instrs {
			switch ins.Op {
			case OpLoad, OpStore, OpIinc:
				if end := ins.Var + ins.Kind.Slots(); end > m.MaxLocals {
					m.MaxLocals = end
				}
			}
		}
	}
	a.curClass.AddMethod(m)
	a.curMeth = nil
	a.labels = nil
	a.defined = nil
}

func opByName(name string) (Opcode, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

func parseCond(s string) (Cond, error) {
	for i, n := range condNames {
		if n == s {
			return Cond(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

func parseKindToken(tok string) (lattice.Kind, error) {
	switch tok {
	case "boolean":
		return lattice.PrimOf(lattice.Boolean), nil
	case "byte":
		return lattice.PrimOf(lattice.Byte), nil
	case "short":
		return lattice.PrimOf(lattice.Short), nil
	case "char":
		return lattice.PrimOf(lattice.Char), nil
	case "int":
		return lattice.PrimOf(lattice.Int), nil
	case "long":
		return lattice.PrimOf(lattice.Long), nil
	case "float":
		return lattice.PrimOf(lattice.Float), nil
	case "double":
		return lattice.PrimOf(lattice.Double), nil
	case "void":
		return lattice.PrimOf(lattice.Void), nil
	case "ref":
		return lattice.TopKind(), nil
	case "string":
		return lattice.RefKind("java/lang/String"), nil
	}
	return ParseFieldDesc(tok)
}

func parseLiteral(k lattice.Kind, lit string) (any, error) {
	if k.IsRef() {
		return lit, nil
	}
	switch k.Prim() {
	case lattice.Float, lattice.Double:
		return strconv.ParseFloat(lit, 64)
	default:
		return strconv.ParseInt(lit, 10, 64)
	}
}

func parseFlags(fields []string) AccessFlags {
	var a AccessFlags
	for _, f := range fields {
		f = strings.TrimPrefix(f, "flags=")
		for _, part := range strings.Split(f, ",") {
			switch part {
			case "public":
				a |= AccPublic
			case "private":
				a |= AccPrivate
			case "protected":
				a |= AccProtected
			case "static":
				a |= AccStatic
			case "final":
				a |= AccFinal
			case "interface":
				a |= AccInterface
			case "abstract":
				a |= AccAbstract
			case "synthetic":
				a |= AccSynthetic
			}
		}
	}
	return a
}
