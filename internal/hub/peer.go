package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Peer represents an individual participant's connection into a
// presentation.
type Peer struct {
	ID       string
	Nickname string

	// The peer's role. Written only by the presentation's run loop.
	role Role

	ws *websocket.Conn

	// Channel for outbound messages.
	dataQ chan []byte

	// Peer's presentation.
	pres *Presentation

	// Rate limiting of drawing events.
	numOps int
	lastOp time.Time
}

// Inbound payload shapes, decoded per event type.
type payloadWrap struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type payloadSlideRemove struct {
	Index int `json:"index"`
}

type payloadRoleChange struct {
	PeerID string `json:"peer_id"`
	Role   string `json:"role"`
}

type payloadDrawAdd struct {
	Index int `json:"index"`
	Op    struct {
		ID   string                 `json:"id"`
		Data map[string]interface{} `json:"data"`
	} `json:"op"`
}

type payloadDrawErase struct {
	Index  int    `json:"index"`
	Target string `json:"target"`
}

type payloadSlideSnapshot struct {
	Index int `json:"index"`
}

// newPeer returns a new instance of Peer.
func newPeer(id, nickname string, role Role, ws *websocket.Conn, pres *Presentation) *Peer {
	qlen := pres.hub.cfg.MaxMessageQueue
	if qlen <= 0 {
		qlen = 100
	}
	return &Peer{
		ID:       id,
		Nickname: nickname,
		role:     role,
		ws:       ws,
		dataQ:    make(chan []byte, qlen),
		pres:     pres,
	}
}

// Role returns the peer's current role.
func (p *Peer) Role() Role {
	return p.role
}

// RunListener is a blocking function that reads incoming messages from
// a peer's WS connection until it's dropped or there's an error. This
// should be invoked as a goroutine.
func (p *Peer) RunListener() {
	p.ws.SetReadLimit(int64(p.pres.hub.cfg.MaxMessageLen))
	for {
		_, m, err := p.ws.ReadMessage()
		if err != nil {
			break
		}
		p.processMessage(m)
	}

	// WS connection is closed.
	p.ws.Close()
	p.pres.queuePeerReq(peerLeave, p)
}

// RunWriter is a blocking function that writes messages in a peer's
// queue to the peer's WS connection. This should be invoked as a
// goroutine.
func (p *Peer) RunWriter() {
	defer p.ws.Close()
	for {
		message, ok := <-p.dataQ
		if !ok {
			p.writeWSData(websocket.CloseMessage, []byte{})
			return
		}
		if err := p.writeWSData(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// SendData queues a message to be written to the peer's WS.
func (p *Peer) SendData(b []byte) {
	p.dataQ <- b
}

// close shuts the underlying connection of a peer that was never
// admitted into the room.
func (p *Peer) close() {
	if p.ws != nil {
		p.ws.Close()
	}
}

// writeWSData writes the given payload to the peer's WS connection.
func (p *Peer) writeWSData(msgType int, payload []byte) error {
	if p.ws == nil {
		return nil
	}
	p.ws.SetWriteDeadline(time.Now().Add(p.pres.hub.cfg.WSTimeout))
	return p.ws.WriteMessage(msgType, payload)
}

// writeWSControl writes the given control payload to the peer's WS connection.
func (p *Peer) writeWSControl(payload []byte) error {
	if p.ws == nil {
		return nil
	}
	return p.ws.WriteControl(websocket.CloseMessage, payload, time.Time{})
}

// processMessage decodes an incoming frame into a typed event and
// queues it for the presentation's run loop. Validation here is shape
// only; authorization and state checks happen in the loop.
func (p *Peer) processMessage(b []byte) {
	var m payloadWrap
	if err := json.Unmarshal(b, &m); err != nil {
		p.sendError(ErrInvalidRequest)
		return
	}

	ev := event{typ: m.Type, peer: p}

	switch m.Type {
	case TypeSlideAdd, TypePeerList:
		// No payload.

	case TypeSlideRemove:
		var d payloadSlideRemove
		if err := json.Unmarshal(m.Data, &d); err != nil {
			p.sendError(ErrInvalidRequest)
			return
		}
		ev.index = d.Index

	case TypeRoleChange:
		var d payloadRoleChange
		if err := json.Unmarshal(m.Data, &d); err != nil {
			p.sendError(ErrInvalidRequest)
			return
		}
		role, ok := ParseRole(d.Role)
		if !ok || d.PeerID == "" {
			p.sendError(ErrInvalidRequest)
			return
		}
		ev.peerID = d.PeerID
		ev.role = role

	case TypeDrawAdd:
		if p.rateLimited() {
			return
		}
		var d payloadDrawAdd
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Op.ID == "" {
			p.sendError(ErrInvalidRequest)
			return
		}
		ev.index = d.Index
		ev.op = DrawingOp{ID: d.Op.ID, Data: d.Op.Data}

	case TypeDrawErase:
		if p.rateLimited() {
			return
		}
		var d payloadDrawErase
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Target == "" {
			p.sendError(ErrInvalidRequest)
			return
		}
		ev.index = d.Index
		ev.op = DrawingOp{Target: d.Target}

	case TypeSlideSnapshot:
		var d payloadSlideSnapshot
		if err := json.Unmarshal(m.Data, &d); err != nil {
			p.sendError(ErrInvalidRequest)
			return
		}
		ev.index = d.Index

	default:
		p.sendError(ErrInvalidRequest)
		return
	}

	p.pres.queueEvent(ev)
}

// rateLimited checks and updates the peer's drawing rate counters.
// A peer that keeps drawing past the limit is disconnected.
func (p *Peer) rateLimited() bool {
	cfg := p.pres.hub.cfg
	if cfg.RateLimitOps <= 0 {
		return false
	}

	now := time.Now()
	if p.numOps > 0 {
		if (p.numOps%cfg.RateLimitOps+1) >= cfg.RateLimitOps &&
			time.Since(p.lastOp) < cfg.RateLimitInterval {
			p.writeWSControl(websocket.FormatCloseMessage(
				websocket.CloseNormalClosure, TypePeerRateLimited))
			p.close()
			return true
		}
	}
	p.lastOp = now
	p.numOps++
	return false
}

// sendError queues a rejection notice to this peer alone.
func (p *Peer) sendError(err error) {
	p.SendData(ErrorPayload(err))
}
