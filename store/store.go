package store

import (
	"errors"
	"time"
)

// Store represents a backend store for presentation metadata. Live
// presentation state (slides, drawings, connected peers) always lives
// in-memory in the hub; the store only registers which presentation IDs
// exist so that lookups and ID collision checks are backend-pluggable.
type Store interface {
	AddPresentation(p Presentation, ttl time.Duration) error
	GetPresentation(id string) (Presentation, error)
	ExtendPresentationTTL(id string, ttl time.Duration) error
	PresentationExists(id string) (bool, error)
	RemovePresentation(id string) error
}

// Presentation represents the properties of a presentation in the store.
type Presentation struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrPresentationNotFound indicates that the requested presentation was not found.
var ErrPresentationNotFound = errors.New("presentation not found")
