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

package inline_test

import (
	"testing"

	"github.com/eerok/scala/analysis/inline"
	"github.com/eerok/scala/internal/analysistest"
)

// Mutual recursion cannot be fully absorbed: one direction keeps its
// candidate, the other is dropped, and the schedule puts the kept direction's
// callee first.
func TestScheduleMutualRecursion(t *testing.T) {
	env, _, classes := loadEnv(t, `
class a/M extends java/lang/Object flags=public,final
  method f (I)I flags=public
    load ref 0
    load int 1
    invokevirtual a/M g (I)I
    return int
  end
  method g (I)I flags=public
    load ref 0
    load int 1
    invokevirtual a/M f (I)I
    return int
  end
end
`)
	cg, err := inline.BuildCallGraph(env, classes)
	if err != nil {
		t.Fatalf("BuildCallGraph: %v", err)
	}
	cg.Populate(env)
	if len(cg.Nodes) != 2 {
		t.Fatalf("host count = %d, want 2", len(cg.Nodes))
	}

	order, err := inline.Schedule(env, cg.Nodes)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("schedule length = %d, want 2", len(order))
	}
	total := 0
	for _, n := range order {
		total += n.CandidateCount()
	}
	if total != 1 {
		t.Errorf("surviving candidates = %d, want exactly one direction kept", total)
	}

	f := analysistest.FindMethod(t, classes, "a/M", "f")
	fNode := cg.NodeOf(f)
	if fNode.CandidateCount() != 1 {
		t.Errorf("first-processed host lost its candidate, want it kept")
	}
	// f absorbs g, so g must be stabilized first.
	if order[0].Method.Name != "g" || order[1].Method.Name != "f" {
		t.Errorf("schedule order = [%s %s], want [g f]",
			order[0].Method.Name, order[1].Method.Name)
	}
}

func TestScheduleSelfRecursion(t *testing.T) {
	env, _, classes := loadEnv(t, `
class a/R extends java/lang/Object flags=public,final
  method r (I)I flags=public
    load ref 0
    load int 1
    invokevirtual a/R r (I)I
    return int
  end
end
`)
	cg, err := inline.BuildCallGraph(env, classes)
	if err != nil {
		t.Fatalf("BuildCallGraph: %v", err)
	}
	cg.Populate(env)
	if len(cg.Nodes) != 1 {
		t.Fatalf("host count = %d, want 1", len(cg.Nodes))
	}

	order, err := inline.Schedule(env, cg.Nodes)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(order) != 1 {
		t.Fatalf("schedule length = %d, want 1", len(order))
	}
	if got := order[0].CandidateCount(); got != 0 {
		t.Errorf("self-recursive candidate survived, count = %d", got)
	}
}

// In a linear chain the callee side of every edge is scheduled before its
// host and nothing is dropped.
func TestScheduleChain(t *testing.T) {
	env, _, classes := loadEnv(t, `
class a/Chain extends java/lang/Object flags=public,final
  method leaf (I)I flags=public
    load int 1
    return int
  end
  method mid (I)I flags=public
    load ref 0
    load int 1
    invokevirtual a/Chain leaf (I)I
    return int
  end
  method top (I)I flags=public
    load ref 0
    load int 1
    invokevirtual a/Chain mid (I)I
    return int
  end
end
`)
	cg, err := inline.BuildCallGraph(env, classes)
	if err != nil {
		t.Fatalf("BuildCallGraph: %v", err)
	}
	cg.Populate(env)
	if len(cg.Nodes) != 2 {
		t.Fatalf("host count = %d, want 2 (leaf absorbs nothing)", len(cg.Nodes))
	}

	order, err := inline.Schedule(env, cg.Nodes)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n.Method.Name] = i
		if n.CandidateCount() != 1 {
			t.Errorf("host %s lost its candidate in an acyclic chain", n.Method.Name)
		}
	}
	if pos["mid"] > pos["top"] {
		t.Errorf("schedule order %v puts the absorbing host before its callee", pos)
	}
}
