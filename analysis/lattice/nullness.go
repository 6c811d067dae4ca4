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

// Nullness is the three-point lattice tracking whether a reference is known
// null, known non-null, or in doubt. InDoubt is the top of the ordering.
type Nullness int

const (
	// NullnessBottom is the nullness of a value on an unreached path.
	NullnessBottom Nullness = iota

	// KnownNull means the value is the null constant on every path.
	KnownNull

	// KnownNonNull means the value cannot be null on any path.
	KnownNonNull

	// InDoubt means the paths disagree or nothing is known.
	InDoubt
)

func (n Nullness) String() string {
	switch n {
	case NullnessBottom:
		return "⊥"
	case KnownNull:
		return "null"
	case KnownNonNull:
		return "nonnull"
	default:
		return "indoubt"
	}
}

// JoinNullness is the least upper bound on the three-point lattice.
func JoinNullness(a, b Nullness) Nullness {
	switch {
	case a == NullnessBottom:
		return b
	case b == NullnessBottom:
		return a
	case a == b:
		return a
	default:
		return InDoubt
	}
}

// NullFrame is the abstract machine state of the nullness analysis, the
// sibling instantiation of the dataflow engine used only to answer
// "is this receiver provably non-null". A nil *NullFrame is bottom.
type NullFrame struct {
	Locals []Nullness
	Stack  []Nullness
}

// NewNullFrame returns a frame with numLocals bottom locals and an empty stack.
func NewNullFrame(numLocals int) *NullFrame {
	return &NullFrame{Locals: make([]Nullness, numLocals)}
}

// Clone returns a deep copy; Clone of the bottom sentinel is the sentinel.
func (f *NullFrame) Clone() *NullFrame {
	if f == nil {
		return nil
	}
	g := &NullFrame{
		Locals: make([]Nullness, len(f.Locals)),
		Stack:  make([]Nullness, len(f.Stack)),
	}
	copy(g.Locals, f.Locals)
	copy(g.Stack, f.Stack)
	return g
}

// Push appends a nullness value on the stack.
func (f *NullFrame) Push(n Nullness) { f.Stack = append(f.Stack, n) }

// Pop removes and returns the top of the stack; popping an empty stack yields
// InDoubt, the nullness analysis is best-effort and never fails.
func (f *NullFrame) Pop() Nullness {
	if len(f.Stack) == 0 {
		return InDoubt
	}
	n := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return n
}

// Peek returns the value n below the top without popping, InDoubt when out of range.
func (f *NullFrame) Peek(n int) Nullness {
	if len(f.Stack) <= n {
		return InDoubt
	}
	return f.Stack[len(f.Stack)-1-n]
}

// GetLocal returns the nullness bound to the slot.
func (f *NullFrame) GetLocal(slot int) Nullness {
	if slot < 0 || slot >= len(f.Locals) {
		return NullnessBottom
	}
	return f.Locals[slot]
}

// SetLocal rebinds the slot, growing the local area when needed.
func (f *NullFrame) SetLocal(slot int, n Nullness) {
	for slot >= len(f.Locals) {
		f.Locals = append(f.Locals, NullnessBottom)
	}
	f.Locals[slot] = n
}

// Equal reports whether two frames agree on every slot and stack position.
func (f *NullFrame) Equal(o *NullFrame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if len(f.Stack) != len(o.Stack) {
		return false
	}
	for i := range f.Stack {
		if f.Stack[i] != o.Stack[i] {
			return false
		}
	}
	n := len(f.Locals)
	if len(o.Locals) > n {
		n = len(o.Locals)
	}
	for i := 0; i < n; i++ {
		if f.GetLocal(i) != o.GetLocal(i) {
			return false
		}
	}
	return true
}

// JoinNullFrames computes the pointwise least upper bound; stacks of different
// heights degrade to the shorter height, all entries in doubt.
func JoinNullFrames(a, b *NullFrame) *NullFrame {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	h := len(a.Stack)
	degraded := false
	if len(b.Stack) < h {
		h = len(b.Stack)
		degraded = true
	} else if len(b.Stack) > h {
		degraded = true
	}
	nLocals := len(a.Locals)
	if len(b.Locals) > nLocals {
		nLocals = len(b.Locals)
	}
	out := &NullFrame{
		Locals: make([]Nullness, nLocals),
		Stack:  make([]Nullness, h),
	}
	for i := 0; i < nLocals; i++ {
		out.Locals[i] = JoinNullness(a.GetLocal(i), b.GetLocal(i))
	}
	for i := 0; i < h; i++ {
		if degraded {
			out.Stack[i] = InDoubt
		} else {
			out.Stack[i] = JoinNullness(a.Stack[i], b.Stack[i])
		}
	}
	return out
}

// ExceptionNullFrame is the handler-entry state: locals inherited, stack reset
// to the single caught reference, which is always non-null.
func ExceptionNullFrame(from *NullFrame) *NullFrame {
	out := &NullFrame{Stack: []Nullness{KnownNonNull}}
	if from != nil {
		out.Locals = make([]Nullness, len(from.Locals))
		copy(out.Locals, from.Locals)
	}
	return out
}
