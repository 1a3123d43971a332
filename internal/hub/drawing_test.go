package hub

import "testing"

func visibleIDs(ops []DrawingOp) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.ID)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrawingAppendErase(t *testing.T) {
	l := NewDrawingLog()
	l.Append(DrawingOp{ID: "a"})
	l.Append(DrawingOp{ID: "b"})

	if got := visibleIDs(l.Visible()); !sameIDs(got, []string{"a", "b"}) {
		t.Fatalf("visible set after appends = %v", got)
	}

	if !l.Erase(DrawingOp{Target: "a"}) {
		t.Fatal("erase of a visible object reported false")
	}
	if got := visibleIDs(l.Visible()); !sameIDs(got, []string{"b"}) {
		t.Fatalf("visible set after erase = %v", got)
	}

	// The erase is a tombstone: the underlying log keeps both the add
	// and the erase.
	if l.Len() != 3 {
		t.Fatalf("log length after erase = %d, want 3", l.Len())
	}
}

func TestDrawingEraseUnknownIsNoop(t *testing.T) {
	l := NewDrawingLog()
	l.Append(DrawingOp{ID: "a"})

	if l.Erase(DrawingOp{Target: "nope"}) {
		t.Fatal("erase of an unknown object reported true")
	}
	if l.Erase(DrawingOp{Target: "a"}) != true {
		t.Fatal("erase of a visible object reported false")
	}
	if l.Erase(DrawingOp{Target: "a"}) {
		t.Fatal("second erase of the same object reported true")
	}
	if l.Len() != 2 {
		t.Fatalf("no-op erases were logged, length = %d", l.Len())
	}
}

func TestDrawingLastWriteWins(t *testing.T) {
	l := NewDrawingLog()
	l.Append(DrawingOp{ID: "a", Data: map[string]interface{}{"v": 1}})
	l.Append(DrawingOp{ID: "b"})
	l.Append(DrawingOp{ID: "a", Data: map[string]interface{}{"v": 2}})

	got := l.Visible()
	if !sameIDs(visibleIDs(got), []string{"b", "a"}) {
		t.Fatalf("re-added object didn't move to the top: %v", visibleIDs(got))
	}
	if got[1].Data["v"] != 2 {
		t.Fatalf("re-added object kept stale data: %v", got[1].Data)
	}
}

func TestDrawingReplayMatchesVisible(t *testing.T) {
	l := NewDrawingLog()
	l.Append(DrawingOp{ID: "a"})
	l.Append(DrawingOp{ID: "b"})
	l.Erase(DrawingOp{Target: "a"})
	l.Append(DrawingOp{ID: "c"})
	l.Append(DrawingOp{ID: "b"})
	l.Erase(DrawingOp{Target: "c"})
	l.Append(DrawingOp{ID: "a"})

	visible := visibleIDs(l.Visible())
	replayed := visibleIDs(l.Replay())
	if !sameIDs(visible, replayed) {
		t.Fatalf("replay %v doesn't match incremental visible set %v", replayed, visible)
	}
	if !sameIDs(visible, []string{"b", "a"}) {
		t.Fatalf("unexpected visible set %v", visible)
	}
}
