package eventlog

import (
	"fmt"
	"testing"
)

func event(n int) map[string]any {
	return map[string]any{"type": "test.event", "seq": n}
}

func TestLog_RecordAndSnapshot(t *testing.T) {
	l := New(10)

	id1 := l.Record(event(1), DirectionSent)
	id2 := l.Record(event(2), DirectionReceived)

	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty IDs, got %q and %q", id1, id2)
	}

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Direction != DirectionSent {
		t.Errorf("entries[0].Direction = %q, want %q", entries[0].Direction, DirectionSent)
	}
	if entries[1].Direction != DirectionReceived {
		t.Errorf("entries[1].Direction = %q, want %q", entries[1].Direction, DirectionReceived)
	}
	if entries[0].Event["seq"] != 1 {
		t.Errorf("entries[0] seq = %v, want 1", entries[0].Event["seq"])
	}
}

func TestLog_BoundAndFIFOEviction(t *testing.T) {
	const capacity = 5
	l := New(capacity)

	for i := 0; i < 23; i++ {
		l.Record(event(i), DirectionSent)
		if l.Len() > capacity {
			t.Fatalf("after %d records, Len() = %d exceeds capacity %d", i+1, l.Len(), capacity)
		}
	}

	entries := l.Entries()
	if len(entries) != capacity {
		t.Fatalf("got %d entries, want %d", len(entries), capacity)
	}
	// Oldest entries evicted first: 18..22 remain, oldest-first.
	for i, e := range entries {
		want := 18 + i
		if e.Event["seq"] != want {
			t.Errorf("entries[%d] seq = %v, want %d", i, e.Event["seq"], want)
		}
	}
}

func TestLog_Clear(t *testing.T) {
	l := New(4)
	for i := 0; i < 6; i++ {
		l.Record(event(i), DirectionReceived)
	}

	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", l.Len())
	}
	if got := l.Entries(); len(got) != 0 {
		t.Errorf("Entries() after Clear has %d entries, want 0", len(got))
	}

	// The log remains usable after clearing.
	l.Record(event(99), DirectionSent)
	if l.Len() != 1 {
		t.Errorf("Len() after record = %d, want 1", l.Len())
	}
}

func TestLog_SetExpanded(t *testing.T) {
	l := New(4)
	id := l.Record(event(1), DirectionSent)
	l.Record(event(2), DirectionSent)

	if !l.SetExpanded(id, true) {
		t.Fatal("SetExpanded returned false for a known ID")
	}

	entries := l.Entries()
	if !entries[0].Expanded {
		t.Error("entries[0].Expanded = false, want true")
	}
	if entries[1].Expanded {
		t.Error("entries[1].Expanded = true, want false")
	}

	if l.SetExpanded("nonexistent", true) {
		t.Error("SetExpanded returned true for an unknown ID")
	}
}

func TestLog_SnapshotIsolation(t *testing.T) {
	l := New(8)
	l.Record(event(1), DirectionSent)

	snap := l.Entries()
	l.Record(event(2), DirectionSent)
	l.Clear()

	if len(snap) != 1 {
		t.Fatalf("snapshot mutated: got %d entries, want 1", len(snap))
	}
	if snap[0].Event["seq"] != 1 {
		t.Errorf("snapshot entry seq = %v, want 1", snap[0].Event["seq"])
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	l := New(0)
	if l.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", l.Capacity(), DefaultCapacity)
	}

	for i := 0; i < DefaultCapacity+10; i++ {
		l.Record(map[string]any{"type": fmt.Sprintf("evt.%d", i)}, DirectionSent)
	}
	if l.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultCapacity)
	}
}
