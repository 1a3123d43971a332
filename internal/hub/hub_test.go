package hub

import (
	"testing"
	"time"

	"github.com/copresent/copresent/store"
)

func TestCreatePresentation(t *testing.T) {
	h := newTestHub(t)

	p, err := h.CreatePresentation("Alice")
	if err != nil {
		t.Fatalf("couldn't create presentation: %v", err)
	}
	if len(p.ID) != h.cfg.PresentationIDLen {
		t.Fatalf("presentation ID %q doesn't have configured length %d", p.ID, h.cfg.PresentationIDLen)
	}
	if len(p.slides) != 1 {
		t.Fatalf("new presentation has %d slides, want 1 default slide", len(p.slides))
	}

	// The presentation is registered in the store and live in the hub.
	exists, err := h.Store.PresentationExists(p.ID)
	if err != nil || !exists {
		t.Fatalf("presentation missing from the store: %v", err)
	}
	if h.GetPresentation(p.ID) != p {
		t.Fatal("presentation isn't live in the hub")
	}
}

func TestActivateUnknownPresentation(t *testing.T) {
	h := newTestHub(t)

	if _, err := h.ActivatePresentation("nope"); err != ErrNotFound {
		t.Fatalf("activating an unknown ID returned %v, want ErrNotFound", err)
	}
	if h.GetPresentation("nope") != nil {
		t.Fatal("failed activation left state behind")
	}
}

func TestActivateFromStore(t *testing.T) {
	h := newTestHub(t)

	// A presentation known to the store but not live yet, e.g. after
	// another instance registered it.
	if err := h.Store.AddPresentation(store.Presentation{
		ID:        "abc123",
		Creator:   "Alice",
		CreatedAt: time.Now(),
	}, time.Hour); err != nil {
		t.Fatalf("couldn't seed store: %v", err)
	}

	p, err := h.ActivatePresentation("abc123")
	if err != nil {
		t.Fatalf("couldn't activate stored presentation: %v", err)
	}
	if p.ID != "abc123" || p.Creator != "Alice" {
		t.Fatalf("unexpected presentation: %+v", p)
	}

	// Activating again returns the same live instance.
	p2, err := h.ActivatePresentation("abc123")
	if err != nil || p2 != p {
		t.Fatalf("re-activation returned a different instance: %v", err)
	}
}

func TestMaxPresentations(t *testing.T) {
	h := newTestHub(t)
	h.cfg.MaxPresentations = 1

	if _, err := h.CreatePresentation("Alice"); err != nil {
		t.Fatalf("couldn't create first presentation: %v", err)
	}
	if _, err := h.CreatePresentation("Bob"); err == nil {
		t.Fatal("created a presentation past the configured maximum")
	}
}

func TestGenerateGUID(t *testing.T) {
	for _, n := range []int{5, 10, 32} {
		id, err := GenerateGUID(n)
		if err != nil {
			t.Fatalf("couldn't generate GUID: %v", err)
		}
		if len(id) != n {
			t.Fatalf("invalid GUID length %d != %d", len(id), n)
		}
	}

	a, _ := GenerateGUID(16)
	b, _ := GenerateGUID(16)
	if a == b {
		t.Fatal("two generated GUIDs collided")
	}
}
