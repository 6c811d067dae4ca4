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

package lattice

import (
	"fmt"
	"strings"
)

// Frame is the abstract machine state at one program point: the kinds bound to
// local-variable slots and the kinds on the operand stack, top of stack last.
//
// A nil *Frame is the bottom state of the dataflow lattice, standing for "not
// yet reached". The bottom frame is a fixed sentinel: joins never mutate their
// operands, every non-sentinel result is freshly allocated so no two worklist
// entries alias the same slices.
type Frame struct {
	Locals []Kind
	Stack  []Kind
}

// NewFrame returns a frame with numLocals bottom-bound locals and an empty
// stack with capacity for maxStack values.
func NewFrame(numLocals, maxStack int) *Frame {
	return &Frame{
		Locals: make([]Kind, numLocals),
		Stack:  make([]Kind, 0, maxStack),
	}
}

// Clone returns a deep copy of the frame. Clone of the bottom sentinel is the
// sentinel itself.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	g := &Frame{
		Locals: make([]Kind, len(f.Locals)),
		Stack:  make([]Kind, len(f.Stack), cap(f.Stack)),
	}
	copy(g.Locals, f.Locals)
	copy(g.Stack, f.Stack)
	return g
}

// Push appends a kind on top of the operand stack.
func (f *Frame) Push(k Kind) {
	f.Stack = append(f.Stack, k)
}

// Pop removes and returns the kind on top of the operand stack.
func (f *Frame) Pop() (Kind, error) {
	if len(f.Stack) == 0 {
		return Kind{}, fmt.Errorf("pop on empty operand stack")
	}
	k := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return k, nil
}

// PopN removes n kinds from the top of the stack.
func (f *Frame) PopN(n int) error {
	if len(f.Stack) < n {
		return fmt.Errorf("pop of %d values on stack of height %d", n, len(f.Stack))
	}
	f.Stack = f.Stack[:len(f.Stack)-n]
	return nil
}

// Peek returns the kind n values below the top of the stack (Peek(0) is the top).
func (f *Frame) Peek(n int) (Kind, error) {
	if len(f.Stack) <= n {
		return Kind{}, fmt.Errorf("peek %d below top on stack of height %d", n, len(f.Stack))
	}
	return f.Stack[len(f.Stack)-1-n], nil
}

// GetLocal returns the kind bound to the slot, bottom when the slot is unbound
// or out of range.
func (f *Frame) GetLocal(slot int) Kind {
	if slot < 0 || slot >= len(f.Locals) {
		return BottomKind()
	}
	return f.Locals[slot]
}

// SetLocal rebinds the slot, growing the local area when needed.
func (f *Frame) SetLocal(slot int, k Kind) {
	for slot >= len(f.Locals) {
		f.Locals = append(f.Locals, BottomKind())
	}
	f.Locals[slot] = k
}

// Height returns the operand-stack height.
func (f *Frame) Height() int {
	if f == nil {
		return 0
	}
	return len(f.Stack)
}

// Equal reports whether two frames carry the same bindings and stack shape.
// The bottom sentinel is only equal to itself.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if len(f.Stack) != len(o.Stack) {
		return false
	}
	for i := range f.Stack {
		if !f.Stack[i].Equal(o.Stack[i]) {
			return false
		}
	}
	// Trailing bottom locals do not distinguish frames.
	n := len(f.Locals)
	if len(o.Locals) > n {
		n = len(o.Locals)
	}
	for i := 0; i < n; i++ {
		if !f.GetLocal(i).Equal(o.GetLocal(i)) {
			return false
		}
	}
	return true
}

// JoinFrames computes the least upper bound of two frames. Joining with the
// bottom sentinel returns the other frame unchanged; any other result is a
// fresh allocation. Stacks of different heights cannot be reconciled and
// return an error, which callers surface as malformed input.
func JoinFrames(h Hierarchy, a, b *Frame) (*Frame, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if len(a.Stack) != len(b.Stack) {
		return nil, fmt.Errorf("operand stack height mismatch at join: %d vs %d", len(a.Stack), len(b.Stack))
	}
	nLocals := len(a.Locals)
	if len(b.Locals) > nLocals {
		nLocals = len(b.Locals)
	}
	out := &Frame{
		Locals: make([]Kind, nLocals),
		Stack:  make([]Kind, len(a.Stack)),
	}
	for i := 0; i < nLocals; i++ {
		out.Locals[i] = Join(h, a.GetLocal(i), b.GetLocal(i))
	}
	for i := range a.Stack {
		out.Stack[i] = Join(h, a.Stack[i], b.Stack[i])
	}
	return out, nil
}

// ExceptionFrame returns the state at an exception-handler entry: the handler
// inherits the locals of the throwing state but starts from a single-element
// stack holding the caught throwable kind.
func ExceptionFrame(from *Frame, catchType string) *Frame {
	caught := ThrowableClass
	if catchType != "" {
		caught = catchType
	}
	out := &Frame{Stack: []Kind{RefKind(caught)}}
	if from != nil {
		out.Locals = make([]Kind, len(from.Locals))
		copy(out.Locals, from.Locals)
	}
	return out
}

func (f *Frame) String() string {
	if f == nil {
		return "⊥"
	}
	var sb strings.Builder
	sb.WriteString("locals=")
	sb.WriteString(KindsString(f.Locals))
	sb.WriteString(" stack=")
	sb.WriteString(KindsString(f.Stack))
	return sb.String()
}
