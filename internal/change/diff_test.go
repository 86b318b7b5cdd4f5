package change

import (
	"slices"
	"testing"

	"github.com/dirpipe/dirpipe/internal/hook"
)

func TestComputeDeltasReplace(t *testing.T) {
	pre := map[string][]string{"mail": {"old@example.com", "extra@example.com"}}
	cs := &hook.ChangeSet{Replace: map[string][]string{"mail": {"new@example.com"}}}

	deltas := ComputeDeltas(pre, cs)

	d, ok := deltas["mail"]
	if !ok {
		t.Fatal("missing delta for mail")
	}
	if !slices.Equal(d.Old, []string{"old@example.com", "extra@example.com"}) {
		t.Errorf("Old = %v", d.Old)
	}
	if !slices.Equal(d.New, []string{"new@example.com"}) {
		t.Errorf("New = %v", d.New)
	}
}

func TestComputeDeltasReplaceAbsentAttribute(t *testing.T) {
	cs := &hook.ChangeSet{Replace: map[string][]string{"mail": {"new@example.com"}}}

	d := ComputeDeltas(map[string][]string{}, cs)["mail"]

	// Old == nil encodes the attribute being added
	if d.Old != nil {
		t.Errorf("Old = %v, want nil for a previously absent attribute", d.Old)
	}
	if !slices.Equal(d.New, []string{"new@example.com"}) {
		t.Errorf("New = %v", d.New)
	}
}

func TestComputeDeltasAdd(t *testing.T) {
	pre := map[string][]string{"mailAlias": {"a@example.com"}}
	cs := &hook.ChangeSet{Add: map[string][]string{"mailAlias": {"b@example.com"}}}

	d := ComputeDeltas(pre, cs)["mailAlias"]

	if !slices.Equal(d.Old, []string{"a@example.com"}) {
		t.Errorf("Old = %v", d.Old)
	}
	if !slices.Equal(d.New, []string{"a@example.com", "b@example.com"}) {
		t.Errorf("New = %v, add must append to existing values", d.New)
	}
}

func TestComputeDeltasAddNewAttribute(t *testing.T) {
	cs := &hook.ChangeSet{Add: map[string][]string{"mailAlias": {"b@example.com"}}}

	d := ComputeDeltas(map[string][]string{}, cs)["mailAlias"]

	if d.Old != nil {
		t.Errorf("Old = %v, want nil", d.Old)
	}
	if !slices.Equal(d.New, []string{"b@example.com"}) {
		t.Errorf("New = %v", d.New)
	}
}

func TestComputeDeltasDeleteEntireAttribute(t *testing.T) {
	pre := map[string][]string{"mailAlias": {"a@example.com", "b@example.com"}}
	cs := &hook.ChangeSet{Delete: map[string][]string{"mailAlias": nil}}

	d := ComputeDeltas(pre, cs)["mailAlias"]

	if !slices.Equal(d.Old, []string{"a@example.com", "b@example.com"}) {
		t.Errorf("Old = %v", d.Old)
	}
	// New == nil encodes removal
	if d.New != nil {
		t.Errorf("New = %v, want nil for full attribute removal", d.New)
	}
}

func TestComputeDeltasDeleteSpecificValues(t *testing.T) {
	pre := map[string][]string{"mailAlias": {"a@example.com", "b@example.com", "c@example.com"}}
	cs := &hook.ChangeSet{Delete: map[string][]string{"mailAlias": {"b@example.com"}}}

	d := ComputeDeltas(pre, cs)["mailAlias"]

	if !slices.Equal(d.New, []string{"a@example.com", "c@example.com"}) {
		t.Errorf("New = %v, want the undeleted values", d.New)
	}
}

func TestComputeDeltasDeleteLastValueCollapses(t *testing.T) {
	pre := map[string][]string{"mailAlias": {"only@example.com"}}
	cs := &hook.ChangeSet{Delete: map[string][]string{"mailAlias": {"only@example.com"}}}

	d := ComputeDeltas(pre, cs)["mailAlias"]

	if d.New != nil {
		t.Errorf("New = %v, deleting the last value must collapse to nil", d.New)
	}
}

func TestComputeDeltasCaseInsensitiveLookup(t *testing.T) {
	// Directory servers return attribute names in schema casing, which may
	// not match the request's casing
	pre := map[string][]string{"mailQuota": {"1024"}}
	cs := &hook.ChangeSet{Replace: map[string][]string{"mailquota": {"2048"}}}

	d, ok := ComputeDeltas(pre, cs)["mailquota"]
	if !ok {
		t.Fatal("missing delta")
	}
	if !slices.Equal(d.Old, []string{"1024"}) {
		t.Errorf("Old = %v, pre-image lookup must ignore attribute case", d.Old)
	}
}

func TestComputeDeltasNilChangeSet(t *testing.T) {
	deltas := ComputeDeltas(map[string][]string{"mail": {"a@example.com"}}, nil)

	if len(deltas) != 0 {
		t.Errorf("ComputeDeltas(nil) = %v, want empty", deltas)
	}
}
