package hub

import "time"

// Kinds of entries in a slide's drawing log.
const (
	DrawKindAdd   = "add"
	DrawKindErase = "erase"
)

// DrawingOp is one entry in a slide's drawing log: the addition of a
// drawn object, or an erase tombstone for a previously added one. The
// object ID is assigned by the drawing client; Data is an opaque
// vector-graphics description that the server never interprets.
type DrawingOp struct {
	ID     string                 `json:"id"`
	Kind   string                 `json:"kind"`
	Target string                 `json:"target,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	PeerID string                 `json:"peer_id"`
	At     time.Time              `json:"at"`
}

// DrawingLog is the append-only drawing history of a single slide.
// Erases never rewrite history: they are recorded as tombstones and
// folded out of the visible projection. The visible set is cached and
// updated incrementally on every append/erase so that snapshots don't
// replay the whole log.
type DrawingLog struct {
	ops   []DrawingOp
	order []string
	byID  map[string]DrawingOp
}

// NewDrawingLog returns an empty drawing log.
func NewDrawingLog() *DrawingLog {
	return &DrawingLog{
		byID: make(map[string]DrawingOp),
	}
}

// Append records the addition of a drawn object. Adding an ID that is
// already visible replaces the object and moves it to the top of the
// draw order (last write wins).
func (l *DrawingLog) Append(op DrawingOp) {
	op.Kind = DrawKindAdd
	l.ops = append(l.ops, op)

	if _, ok := l.byID[op.ID]; ok {
		l.dropVisible(op.ID)
	}
	l.order = append(l.order, op.ID)
	l.byID[op.ID] = op
}

// Erase records a tombstone for the object with the given target ID.
// It reports false, recording nothing, if the target isn't currently
// visible.
func (l *DrawingLog) Erase(op DrawingOp) bool {
	if _, ok := l.byID[op.Target]; !ok {
		return false
	}

	op.Kind = DrawKindErase
	l.ops = append(l.ops, op)
	l.dropVisible(op.Target)
	return true
}

// Visible returns the currently visible objects in draw order, from
// the incrementally maintained cache.
func (l *DrawingLog) Visible() []DrawingOp {
	out := make([]DrawingOp, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Replay folds the full log from the beginning and returns the
// resulting visible set. The result always matches Visible; it exists
// so the equivalence is checkable and late consumers of the raw log
// can reproduce the projection.
func (l *DrawingLog) Replay() []DrawingOp {
	var (
		order []string
		byID  = make(map[string]DrawingOp)
	)
	drop := func(id string) {
		for i, v := range order {
			if v == id {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
	}

	for _, op := range l.ops {
		switch op.Kind {
		case DrawKindAdd:
			if _, ok := byID[op.ID]; ok {
				drop(op.ID)
			}
			order = append(order, op.ID)
			byID[op.ID] = op
		case DrawKindErase:
			if _, ok := byID[op.Target]; ok {
				drop(op.Target)
				delete(byID, op.Target)
			}
		}
	}

	out := make([]DrawingOp, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// Len returns the number of entries in the underlying log, tombstones
// included.
func (l *DrawingLog) Len() int {
	return len(l.ops)
}

// dropVisible removes an ID from the visible projection.
func (l *DrawingLog) dropVisible(id string) {
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	delete(l.byID, id)
}
