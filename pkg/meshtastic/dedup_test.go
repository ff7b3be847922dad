package meshtastic

import "testing"

func TestDedupSetContainsAfterAdd(t *testing.T) {
	d := NewDedupSet(4)
	if d.Contains(1) {
		t.Fatal("expected empty set to not contain 1")
	}
	d.Add(1)
	if !d.Contains(1) {
		t.Fatal("expected set to contain 1 after Add")
	}
}

func TestDedupSetEvictsOldestOverCapacity(t *testing.T) {
	d := NewDedupSet(3)
	d.Add(1)
	d.Add(2)
	d.Add(3)
	d.Add(4) // evicts 1

	if d.Contains(1) {
		t.Error("expected 1 to have been evicted")
	}
	if !d.Contains(2) || !d.Contains(3) || !d.Contains(4) {
		t.Error("expected 2, 3, 4 to remain")
	}
	if d.Len() != 3 {
		t.Errorf("expected capacity-bounded length 3, got %d", d.Len())
	}
}

func TestDedupSetRefreshesRecencyOnReAdd(t *testing.T) {
	d := NewDedupSet(3)
	d.Add(1)
	d.Add(2)
	d.Add(3)
	d.Add(1) // refresh 1's recency, 2 is now oldest
	d.Add(4) // should evict 2, not 1

	if !d.Contains(1) {
		t.Error("expected 1 to survive after being refreshed")
	}
	if d.Contains(2) {
		t.Error("expected 2 to be evicted as the new oldest")
	}
}

func TestDedupSetDefaultsCapacityWhenNonPositive(t *testing.T) {
	d := NewDedupSet(0)
	if d.capacity != DefaultDedupCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultDedupCapacity, d.capacity)
	}
}
