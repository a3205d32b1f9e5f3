package model

import "testing"

func TestItemInsertAndDetach(t *testing.T) {
	bag := &Item{ID: 1, WeightGrams: 100}
	sword := &Item{ID: 2, WeightGrams: 2000}
	coin := &Item{ID: 3, WeightGrams: 10, Coin: true}
	bag.Insert(sword)
	bag.Insert(coin)

	if !bag.Hollow() || len(bag.Contents()) != 2 {
		t.Fatalf("expected 2 contained items, got %d", len(bag.Contents()))
	}
	if got := bag.TotalWeight(); got != 2110 {
		t.Fatalf("total weight: got %d want 2110", got)
	}
	if got := bag.CountNested(); got != 3 {
		t.Fatalf("nested count: got %d want 3", got)
	}

	if !sword.DetachFromParent() {
		t.Fatalf("expected sword to leave bag")
	}
	if sword.DetachFromParent() {
		t.Fatalf("second detach should report no parent")
	}
	if sword.Parent() != nil || len(bag.Contents()) != 1 {
		t.Fatalf("bag should only hold the coin")
	}
}

func TestItemInsertMovesBetweenParents(t *testing.T) {
	a := &Item{ID: 1}
	b := &Item{ID: 2}
	x := &Item{ID: 3}
	a.Insert(x)
	b.Insert(x)
	if len(a.Contents()) != 0 || len(b.Contents()) != 1 || x.Parent() != b {
		t.Fatalf("expected x to move from a to b")
	}
}

func TestSetOwnerDeep(t *testing.T) {
	bag := &Item{ID: 1, Owner: 5}
	inner := &Item{ID: 2, Owner: 5}
	bag.Insert(inner)
	bag.SetOwnerDeep(9)
	if bag.Owner != 9 || inner.Owner != 9 {
		t.Fatalf("owners not propagated: %d %d", bag.Owner, inner.Owner)
	}
}
