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

package analysis

import (
	"fmt"
	"strings"
	"sync"

	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/config"
	"github.com/eerok/scala/analysis/lattice"
	"github.com/eerok/scala/internal/funcutil"
)

// AnalyzerState is the per-run session shared by every component of the
// optimizer: configuration, logging, the class repository and the hierarchy
// facts derived from it, plus run statistics. The repository and hierarchy
// are populated before any parallel work starts and are read-only afterwards.
type AnalyzerState struct {
	Config *config.Config
	Logger *config.LogGroup
	Repo   *Repository
	Hier   *ClassHierarchy
	Stats  *Statistics
}

// NewAnalyzerState builds a session over the classes of one compilation.
// The loader, when non-nil, resolves classes outside the compilation; lookups
// through it are memoized.
func NewAnalyzerState(cfg *config.Config, classes []*bytecode.Class,
	loader func(name string) (*bytecode.Class, error)) *AnalyzerState {
	repo := NewRepository(classes, loader)
	return &AnalyzerState{
		Config: cfg,
		Logger: config.NewLogGroup(cfg),
		Repo:   repo,
		Hier:   &ClassHierarchy{repo: repo},
		Stats:  &Statistics{},
	}
}

// IsClosureClass reports whether a class is an anonymous-function class
// eligible for stack allocation: final, with a public apply entry point, and
// either compiler-synthesized or named like a lifted function literal.
func (s *AnalyzerState) IsClosureClass(c *bytecode.Class) bool {
	if !c.Access.IsFinal() {
		return false
	}
	if c.Access&bytecode.AccSynthetic == 0 && !strings.Contains(c.Name, "$anonfun") {
		return false
	}
	return funcutil.Exists(c.Methods, func(m *bytecode.Method) bool {
		return m.Name == "apply" && m.Access.IsPublic() && !m.Access.IsStatic()
	})
}

// Repository resolves class names to their instruction-level representation.
// Classes of the current compilation are registered up front; external
// classes come from the loader on first request and are cached, guarded by a
// concurrent map since parallel pre-analysis may race on the same name.
type Repository struct {
	cache  sync.Map // class name -> *bytecode.Class
	loader func(name string) (*bytecode.Class, error)
}

// NewRepository builds a repository over the compilation's classes. Stubs for
// the universal object and throwable roots are always present so hierarchy
// queries bottom out without a loader.
func NewRepository(classes []*bytecode.Class, loader func(name string) (*bytecode.Class, error)) *Repository {
	r := &Repository{loader: loader}
	r.cache.Store(lattice.ObjectClass, &bytecode.Class{
		Access: bytecode.AccPublic,
		Name:   lattice.ObjectClass,
	})
	r.cache.Store(lattice.ThrowableClass, &bytecode.Class{
		Access:    bytecode.AccPublic,
		Name:      lattice.ThrowableClass,
		SuperName: lattice.ObjectClass,
	})
	for _, c := range classes {
		r.cache.Store(c.Name, c)
	}
	return r
}

// Class returns the class with the given internal name, loading and caching
// it when a loader is available.
func (r *Repository) Class(name string) (*bytecode.Class, error) {
	if v, ok := r.cache.Load(name); ok {
		return v.(*bytecode.Class), nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("class %s not found in compilation and no external loader is set", name)
	}
	c, err := r.loader(name)
	if err != nil {
		return nil, fmt.Errorf("could not load external class %s: %w", name, err)
	}
	v, _ := r.cache.LoadOrStore(name, c)
	return v.(*bytecode.Class), nil
}

// ClassHierarchy answers subtype and ancestor queries by walking superclass
// chains through the repository. Unknown classes degrade to the universal
// object root rather than failing, which only loses precision.
type ClassHierarchy struct {
	repo *Repository
}

// IsSubtype reports whether sub is a subclass of sup, either directly or
// through its superclass chain or declared interfaces.
func (h *ClassHierarchy) IsSubtype(sub, sup string) bool {
	if sup == lattice.ObjectClass {
		return true
	}
	for cur := sub; cur != ""; {
		if cur == sup {
			return true
		}
		c, err := h.repo.Class(cur)
		if err != nil || c == nil {
			return false
		}
		for _, itf := range c.Interfaces {
			if h.IsSubtype(itf, sup) {
				return true
			}
		}
		cur = c.SuperName
	}
	return false
}

// CommonAncestor returns the least common superclass of two classes, the
// universal object root when the chains share nothing else.
func (h *ClassHierarchy) CommonAncestor(a, b string) string {
	ancestors := map[string]bool{}
	for cur := a; cur != ""; {
		ancestors[cur] = true
		c, err := h.repo.Class(cur)
		if err != nil || c == nil {
			break
		}
		cur = c.SuperName
	}
	for cur := b; cur != ""; {
		if ancestors[cur] {
			return cur
		}
		c, err := h.repo.Class(cur)
		if err != nil || c == nil {
			break
		}
		cur = c.SuperName
	}
	return lattice.ObjectClass
}

// Devirtualize resolves a dynamically dispatched call to its single concrete
// target when the receiver's static type guarantees no override can exist:
// the receiver class is final, or the resolved method is final or private.
func (h *ClassHierarchy) Devirtualize(receiver lattice.Kind, sym *bytecode.SymbolRef) (string, bool) {
	if !receiver.IsRef() {
		return "", false
	}
	for cur := receiver.Ref(); cur != ""; {
		c, err := h.repo.Class(cur)
		if err != nil || c == nil {
			return "", false
		}
		if m := c.FindMethod(sym.Name, sym.Desc); m != nil {
			if c.Access.IsFinal() || m.Access.IsFinal() || m.Access.IsPrivate() {
				return c.Name, true
			}
			return "", false
		}
		cur = c.SuperName
	}
	return "", false
}

// Statistics counts what the run did; incremented under a lock since the
// pre-analysis phase runs on several goroutines.
type Statistics struct {
	mu sync.Mutex

	MethodsAnalyzed int
	CandidateSites  int
	Inlined         int
	ClosuresInlined int
	Refused         int
	ClassesElided   int
}

// Add accumulates counters under the lock.
func (s *Statistics) Add(f func(*Statistics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

// String renders a one-line summary of the run.
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d methods analyzed, %d candidate sites, %d inlined, %d closures inlined, %d refused, %d classes elided",
		s.MethodsAnalyzed, s.CandidateSites, s.Inlined, s.ClosuresInlined, s.Refused, s.ClassesElided)
}
