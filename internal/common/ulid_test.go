package common

import "testing"

func TestNewULID_Monotonic(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("NewULID: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("len = %d, want 26", len(id))
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %s <= %s", id, prev)
		}
		prev = id
	}
}
