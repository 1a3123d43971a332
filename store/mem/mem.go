package mem

import (
	"sync"
	"time"

	"github.com/copresent/copresent/store"
)

// Config represents the InMemory store config structure.
type Config struct{}

// InMemory represents the in-memory implementation of the Store interface.
type InMemory struct {
	cfg           *Config
	presentations map[string]*presentation
	mu            sync.Mutex
}

type presentation struct {
	store.Presentation
	Expire time.Time
}

// New returns a new in-memory store.
func New(cfg Config) (*InMemory, error) {
	store := &InMemory{
		cfg:           &cfg,
		presentations: map[string]*presentation{},
	}
	go store.watch()
	return store, nil
}

// watch the store to clean it up.
func (m *InMemory) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.cleanup()
	}
}

// cleanup the store to remove expired items.
func (m *InMemory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for id, p := range m.presentations {
		if p.Expire.Before(now) {
			delete(m.presentations, id)
			continue
		}
	}
}

// AddPresentation adds a presentation to the store.
func (m *InMemory) AddPresentation(p store.Presentation, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.presentations[p.ID] = &presentation{
		Presentation: p,
		Expire:       p.CreatedAt.Add(ttl),
	}

	return nil
}

// ExtendPresentationTTL extends a presentation's TTL.
func (m *InMemory) ExtendPresentationTTL(id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.presentations[id]
	if !ok {
		return store.ErrPresentationNotFound
	}

	p.Expire = p.Expire.Add(ttl)
	m.presentations[id] = p
	return nil
}

// GetPresentation gets a presentation from the store.
func (m *InMemory) GetPresentation(id string) (store.Presentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.presentations[id]
	if !ok {
		return store.Presentation{}, store.ErrPresentationNotFound
	}
	return out.Presentation, nil
}

// PresentationExists checks if a presentation exists in the store.
func (m *InMemory) PresentationExists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.presentations[id]

	return ok, nil
}

// RemovePresentation deletes a presentation from the store.
func (m *InMemory) RemovePresentation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.presentations, id)

	return nil
}
