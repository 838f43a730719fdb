package sync

import (
	"reflect"
	"testing"
)

func TestReorder_DependencyOrderFirst(t *testing.T) {
	cs := ChangeSet{
		"transfers":    {Created: records("tr", 1)},
		"accounts":     {Created: records("acc", 2)},
		"transactions": {Updated: records("txn", 3)},
		"budgets":      {Deleted: []string{"b-1"}},
	}

	got := Reorder(cs)

	want := []string{"accounts", "budgets", "transactions", "transfers"}
	if !reflect.DeepEqual(tableNames(got), want) {
		t.Errorf("table order = %v, want %v", tableNames(got), want)
	}
}

func TestReorder_UnlistedTablesAppended(t *testing.T) {
	cs := ChangeSet{
		"zz_new_table": {Created: records("z", 1)},
		"accounts":     {Created: records("acc", 1)},
		"aa_new_table": {Created: records("a", 1)},
	}

	got := Reorder(cs)

	want := []string{"accounts", "aa_new_table", "zz_new_table"}
	if !reflect.DeepEqual(tableNames(got), want) {
		t.Errorf("table order = %v, want %v", tableNames(got), want)
	}
}

func TestReorder_ExcludedTablesDropped(t *testing.T) {
	cs := ChangeSet{
		"categories":     {Created: records("cat", 5)},
		"exchange_rates": {Updated: records("fx", 2)},
		"transactions":   {Created: records("txn", 1)},
		"accounts":       {Created: records("acc", 1)},
	}

	got := Reorder(cs)

	want := []string{"accounts", "transactions"}
	if !reflect.DeepEqual(tableNames(got), want) {
		t.Errorf("table order = %v, want %v", tableNames(got), want)
	}
}

func TestReorder_EmptyChangeSet(t *testing.T) {
	if got := Reorder(ChangeSet{}); len(got) != 0 {
		t.Errorf("expected empty output, got %d entries", len(got))
	}
}

func TestReorder_PreservesChanges(t *testing.T) {
	created := records("txn", 3)
	cs := ChangeSet{"transactions": {Created: created, Deleted: []string{"gone"}}}

	got := Reorder(cs)

	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Changes.Created, created) {
		t.Error("created rows were not preserved")
	}
	if !reflect.DeepEqual(got[0].Changes.Deleted, []string{"gone"}) {
		t.Error("deleted ids were not preserved")
	}
}

func TestFilter_Symmetry(t *testing.T) {
	cs := ChangeSet{
		"categories": {Created: records("cat", 1)},
		"accounts":   {Created: records("acc", 1)},
	}

	got := Filter(cs)

	if _, ok := got["categories"]; ok {
		t.Error("excluded table survived Filter")
	}
	if _, ok := got["accounts"]; !ok {
		t.Error("synchronized table dropped by Filter")
	}
}

func tableNames(oc OrderedChanges) []string {
	names := make([]string, len(oc))
	for i, e := range oc {
		names[i] = e.Table
	}
	return names
}
