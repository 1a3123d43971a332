package hub

import (
	"crypto/rand"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/copresent/copresent/store"
)

// Types of inbound events accepted from peers.
const (
	TypeSessionCreate = "session.create"
	TypeSessionJoin   = "session.join"
	TypeSlideAdd      = "slide.add"
	TypeSlideRemove   = "slide.remove"
	TypeRoleChange    = "role.change"
	TypeDrawAdd       = "draw.add"
	TypeDrawErase     = "draw.erase"
	TypeSlideSnapshot = "slide.snapshot"
	TypePeerList      = "peer.list"
)

// Types of outbound events sent to peers.
const (
	TypeSessionSnapshot = "session.snapshot"
	TypeRoster          = "roster"
	TypeSlideList       = "slide.list"
	TypeDrawOp          = "draw.op"
	TypeSlideVisible    = "slide.visible"
	TypeError           = "error"
	TypePeerRateLimited = "peer.ratelimited"
	TypeNotice          = "notice"
)

// Config represents the app configuration.
type Config struct {
	Address string `koanf:"address"`
	RootURL string `koanf:"root_url"`
	Name    string `koanf:"name"`

	PresentationIDLen   int           `koanf:"presentation_id_length"`
	MaxPresentations    int           `koanf:"max_presentations"`
	MaxPeers            int           `koanf:"max_peers"`
	MaxMessageLen       int           `koanf:"max_message_length"`
	MaxMessageQueue     int           `koanf:"max_message_queue"`
	WSTimeout           time.Duration `koanf:"websocket_timeout"`
	RateLimitInterval   time.Duration `koanf:"rate_limit_interval"`
	RateLimitOps        int           `koanf:"rate_limit_ops"`
	PresentationAge     time.Duration `koanf:"presentation_age"`
	PresentationTimeout time.Duration `koanf:"presentation_timeout"`
}

// Hub acts as the controller and container for all live presentations.
type Hub struct {
	Store store.Store

	presentations map[string]*Presentation

	cfg *Config
	mut sync.RWMutex
	log *log.Logger
}

// NewHub returns a new instance of Hub.
func NewHub(cfg *Config, store store.Store, l *log.Logger) *Hub {
	return &Hub{
		presentations: make(map[string]*Presentation),

		cfg:   cfg,
		Store: store,
		log:   l,
	}
}

// CreatePresentation mints a new presentation ID, registers it in the
// store, and adds it to the hub. The creator joins separately via
// AddPeer with RoleCreator.
func (h *Hub) CreatePresentation(creator string) (*Presentation, error) {
	if h.cfg.MaxPresentations > 0 && len(h.getPresentations()) >= h.cfg.MaxPresentations {
		return nil, errors.New("maximum number of presentations reached")
	}

	id, err := h.generatePresentationID(h.cfg.PresentationIDLen, 5)
	if err != nil {
		return nil, err
	}

	if err := h.Store.AddPresentation(store.Presentation{
		ID:        id,
		Creator:   creator,
		CreatedAt: time.Now(),
	}, h.cfg.PresentationAge); err != nil {
		h.log.Printf("error creating presentation in the store: %v", err)
		return nil, errors.New("error creating presentation")
	}

	return h.initPresentation(id, creator), nil
}

// ActivatePresentation loads a presentation from the store into the
// hub if it's not already live. Returns ErrNotFound for unknown IDs.
func (h *Hub) ActivatePresentation(id string) (*Presentation, error) {
	h.mut.RLock()
	p, ok := h.presentations[id]
	h.mut.RUnlock()
	if ok {
		return p, nil
	}

	meta, err := h.Store.GetPresentation(id)
	if err != nil {
		return nil, ErrNotFound
	}

	return h.initPresentation(meta.ID, meta.Creator), nil
}

// GetPresentation retrieves a live presentation from the hub.
func (h *Hub) GetPresentation(id string) *Presentation {
	h.mut.RLock()
	p := h.presentations[id]
	h.mut.RUnlock()
	return p
}

// initPresentation initializes a presentation on the hub.
func (h *Hub) initPresentation(id, creator string) *Presentation {
	p := NewPresentation(id, creator, h)
	h.mut.Lock()
	h.presentations[id] = p
	h.mut.Unlock()
	go p.run()
	return p
}

// getPresentations returns the list of live presentations.
func (h *Hub) getPresentations() []*Presentation {
	h.mut.RLock()
	out := make([]*Presentation, 0, len(h.presentations))
	for _, p := range h.presentations {
		out = append(out, p)
	}
	h.mut.RUnlock()
	return out
}

// removePresentation removes a presentation from the hub and the store.
func (h *Hub) removePresentation(id string) error {
	h.mut.Lock()
	delete(h.presentations, id)
	h.mut.Unlock()

	if err := h.Store.RemovePresentation(id); err != nil {
		h.log.Printf("error removing presentation from store: %v", err)
		return err
	}
	return nil
}

// generatePresentationID generates a random presentation ID while
// checking the store for uniqueness up to numTries times.
func (h *Hub) generatePresentationID(length, numTries int) (string, error) {
	for i := 0; i < numTries; i++ {
		id, err := GenerateGUID(length)
		if err != nil {
			h.log.Printf("error generating presentation ID: %v", err)
			return "", errors.New("error generating presentation ID")
		}

		exists, err := h.Store.PresentationExists(id)
		if err != nil {
			h.log.Printf("error checking presentation ID in store: %v", err)
			return "", errors.New("error checking presentation ID")
		}

		// Got a unique ID.
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("unable to generate unique presentation ID")
}

// GenerateGUID generates a cryptographically random, alphanumeric string of length n.
func GenerateGUID(n int) (string, error) {
	const dictionary = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var bytes = make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for k, v := range bytes {
		bytes[k] = dictionary[v%byte(len(dictionary))]
	}
	return string(bytes), nil
}
