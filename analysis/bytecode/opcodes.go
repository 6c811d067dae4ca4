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

// Opcode identifies the operation of an instruction. The set is a typed
// condensation of the JVM instruction set: width-variants of the same
// operation (iload/lload/fload/...) are a single opcode carrying the operand
// kind on the instruction.
type Opcode int

const (
	// OpLabel is a pseudo-instruction marking a jump target. Labels are
	// referenced by instruction identity, never by position.
	OpLabel Opcode = iota

	// OpLine is a pseudo-instruction carrying source-line debug information.
	OpLine

	// OpConst pushes the constant Value of kind Kind.
	OpConst

	// OpConstNull pushes the null reference.
	OpConstNull

	// OpLoad pushes local slot Var; Kind is the slot's static kind.
	OpLoad

	// OpStore pops one value into local slot Var.
	OpStore

	// OpIinc increments integer local slot Var by Value without touching the stack.
	OpIinc

	// Stack shuffling.
	OpPop
	OpPop2
	OpDup
	OpDupX1
	OpSwap

	// Arithmetic and logic; Kind is the operand kind.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpShl
	OpShr
	OpUshr
	OpAnd
	OpOr
	OpXor

	// OpCmp pops two values of kind Kind and pushes an int comparison result.
	OpCmp

	// OpConvert pops a value of kind Kind and pushes it as Kind2.
	OpConvert

	// Field access; Sym names the field.
	OpGetStatic
	OpPutStatic
	OpGetField
	OpPutField

	// Invocations; Sym names the target method.
	OpInvokeVirtual
	OpInvokeSpecial
	OpInvokeStatic
	OpInvokeInterface
	OpInvokeDynamic

	// Object and array operations.
	OpNew         // Sym.Owner is the constructed class
	OpNewArray    // Kind is the element kind; pops a length, pushes the array
	OpArrayLength // pops an array, pushes int
	OpArrayLoad   // Kind is the element kind
	OpArrayStore  // Kind is the element kind
	OpCheckCast   // Sym.Owner is the target class
	OpInstanceOf  // Sym.Owner is the tested class; pushes boolean
	OpThrow
	OpMonitorEnter
	OpMonitorExit

	// Control flow.
	OpGoto      // unconditional jump to Target
	OpIfZero    // pops one int, jumps to Target when Cond holds against zero
	OpIfCmp     // pops two values of kind Kind, jumps to Target when Cond holds
	OpIfNull    // pops one reference, jumps when null
	OpIfNonNull // pops one reference, jumps when non-null
	OpSwitch    // pops one int, jumps to Targets[i] for Keys[i], else Default

	// OpReturn returns a value of kind Kind (Void for a bare return).
	OpReturn
)

var opNames = map[Opcode]string{
	OpLabel:           "label",
	OpLine:            "line",
	OpConst:           "const",
	OpConstNull:       "constnull",
	OpLoad:            "load",
	OpStore:           "store",
	OpIinc:            "iinc",
	OpPop:             "pop",
	OpPop2:            "pop2",
	OpDup:             "dup",
	OpDupX1:           "dupx1",
	OpSwap:            "swap",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpDiv:             "div",
	OpRem:             "rem",
	OpNeg:             "neg",
	OpShl:             "shl",
	OpShr:             "shr",
	OpUshr:            "ushr",
	OpAnd:             "and",
	OpOr:              "or",
	OpXor:             "xor",
	OpCmp:             "cmp",
	OpConvert:         "convert",
	OpGetStatic:       "getstatic",
	OpPutStatic:       "putstatic",
	OpGetField:        "getfield",
	OpPutField:        "putfield",
	OpInvokeVirtual:   "invokevirtual",
	OpInvokeSpecial:   "invokespecial",
	OpInvokeStatic:    "invokestatic",
	OpInvokeInterface: "invokeinterface",
	OpInvokeDynamic:   "invokedynamic",
	OpNew:             "new",
	OpNewArray:        "newarray",
	OpArrayLength:     "arraylength",
	OpArrayLoad:       "arrayload",
	OpArrayStore:      "arraystore",
	OpCheckCast:       "checkcast",
	OpInstanceOf:      "instanceof",
	OpThrow:           "throw",
	OpMonitorEnter:    "monitorenter",
	OpMonitorExit:     "monitorexit",
	OpGoto:            "goto",
	OpIfZero:          "ifzero",
	OpIfCmp:           "ifcmp",
	OpIfNull:          "ifnull",
	OpIfNonNull:       "ifnonnull",
	OpSwitch:          "switch",
	OpReturn:          "return",
}

func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "op?"
}

// Cond is the comparison of a conditional jump.
type Cond int

const (
	CondEq Cond = iota
	CondNe
	CondLt
	CondGe
	CondGt
	CondLe
)

var condNames = [...]string{"eq", "ne", "lt", "ge", "gt", "le"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "cond?"
}

// IsInvoke reports whether the opcode is any call instruction.
func (op Opcode) IsInvoke() bool {
	switch op {
	case OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic, OpInvokeInterface, OpInvokeDynamic:
		return true
	}
	return false
}

// IsJump reports whether the opcode transfers control to an explicit target.
func (op Opcode) IsJump() bool {
	switch op {
	case OpGoto, OpIfZero, OpIfCmp, OpIfNull, OpIfNonNull, OpSwitch:
		return true
	}
	return false
}

// IsTerminator reports whether control never falls through the opcode.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpGoto, OpSwitch, OpReturn, OpThrow:
		return true
	}
	return false
}

// IsPseudo reports whether the opcode has no runtime effect.
func (op Opcode) IsPseudo() bool {
	return op == OpLabel || op == OpLine
}
