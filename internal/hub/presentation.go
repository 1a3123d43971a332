package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type msgWrap struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type msgPeer struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}

type msgSnapshot struct {
	ID       string                 `json:"id"`
	Slides   []*Slide               `json:"slides"`
	Peers    []msgPeer              `json:"peers"`
	Drawings map[string][]DrawingOp `json:"drawings"`
}

type msgDrawOp struct {
	SlideID    string    `json:"slide_id"`
	SlideIndex int       `json:"slide_index"`
	Op         DrawingOp `json:"op"`
}

type msgVisible struct {
	SlideID    string      `json:"slide_id"`
	SlideIndex int         `json:"slide_index"`
	Ops        []DrawingOp `json:"ops"`
}

type msgError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Slide is one page of a presentation. The ID is minted at creation
// and stays stable for the slide's lifetime; the drawing log is keyed
// by it, never by position, so removals can't misattribute drawings
// to whichever slide shifts into the freed index.
type Slide struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// event is one inbound operation from a peer, decoded by the peer's
// listener and applied by the presentation's run loop. The type tags
// which of the payload fields are meaningful.
type event struct {
	typ  string
	peer *Peer

	index  int
	peerID string
	role   Role
	op     DrawingOp
}

// Internal peer request kinds processed by the run loop.
const (
	peerJoin  = "peer.join"
	peerLeave = "peer.leave"
)

// peerReq represents a peer join/leave request that's processed by a
// Presentation.
type peerReq struct {
	reqType string
	peer    *Peer
}

// Presentation represents one live presentation: its slides, the
// drawing log per slide, and the roster of connected peers. All of
// that state is owned exclusively by the run loop; every mutation is
// applied and fanned out before the next event is read.
type Presentation struct {
	ID      string
	Creator string

	hub *Hub

	slides   []*Slide
	drawings map[string]*DrawingLog
	peers    map[*Peer]bool

	// Inbound operations from peers.
	eventQ chan event

	// Peer join/leave requests.
	peerQ chan peerReq

	// Dispose signal.
	disposeSig chan bool

	mut    sync.Mutex
	closed bool
}

// NewPresentation returns a new instance of Presentation with a single
// default slide.
func NewPresentation(id, creator string, h *Hub) *Presentation {
	p := &Presentation{
		ID:      id,
		Creator: creator,
		hub:     h,

		drawings:   make(map[string]*DrawingLog),
		peers:      make(map[*Peer]bool, 100),
		eventQ:     make(chan event, 100),
		peerQ:      make(chan peerReq, 100),
		disposeSig: make(chan bool),
	}
	p.appendSlide()
	return p
}

// AddPeer adds a new peer to the presentation given a WS connection
// from an HTTP handler.
func (p *Presentation) AddPeer(id, nickname string, role Role, ws *websocket.Conn) {
	p.queuePeerReq(peerJoin, newPeer(id, nickname, role, ws, p))
}

// Dispose signals the presentation to disconnect all peers and remove
// itself from the hub.
func (p *Presentation) Dispose() {
	p.disposeSig <- true
}

// run is a blocking function that starts the main event loop for a
// presentation. Every mutating operation passes through here, so no
// two operations on the same presentation can interleave. This should
// be invoked as a goroutine.
func (p *Presentation) run() {
loop:
	for {
		select {
		case <-p.disposeSig:
			break loop

		case req, ok := <-p.peerQ:
			if !ok {
				break loop
			}
			switch req.reqType {
			case peerJoin:
				p.addPeer(req.peer)
			case peerLeave:
				p.dropPeer(req.peer)
			}

		case ev, ok := <-p.eventQ:
			if !ok {
				break loop
			}
			p.apply(ev)

		case <-time.After(p.hub.cfg.PresentationTimeout):
			// Presentations aren't torn down on the last disconnect;
			// they're reaped only after sitting empty for the full
			// inactivity window.
			if len(p.peers) == 0 {
				break loop
			}
		}
	}

	p.hub.log.Printf("stopped presentation: %v", p.ID)
	p.remove()
}

// apply authorizes and executes a single inbound event. The policy
// check is a pure role lookup; a denied operation mutates nothing and
// only the sender hears about it.
func (p *Presentation) apply(ev event) {
	if !ev.peer.role.Can(ev.typ) {
		p.sendError(ev.peer, ErrUnauthorized)
		return
	}

	switch ev.typ {
	case TypeSlideAdd:
		p.slideAdd(ev)
	case TypeSlideRemove:
		p.slideRemove(ev)
	case TypeRoleChange:
		p.roleChange(ev)
	case TypeDrawAdd:
		p.drawAdd(ev)
	case TypeDrawErase:
		p.drawErase(ev)
	case TypeSlideSnapshot:
		p.slideSnapshot(ev)
	case TypePeerList:
		ev.peer.SendData(p.makeRosterPayload())
	default:
		p.sendError(ev.peer, ErrInvalidRequest)
	}
}

// slideAdd appends a slide labelled from the new slide count and
// broadcasts the updated slide list.
func (p *Presentation) slideAdd(ev event) {
	p.appendSlide()
	p.fanout(p.makeSlideListPayload())
}

// slideRemove removes the slide at the given index along with its
// drawing log and broadcasts the updated slide list.
func (p *Presentation) slideRemove(ev event) {
	if ev.index < 0 || ev.index >= len(p.slides) {
		p.sendError(ev.peer, ErrInvalidIndex)
		return
	}

	s := p.slides[ev.index]
	p.slides = append(p.slides[:ev.index], p.slides[ev.index+1:]...)
	delete(p.drawings, s.ID)
	p.fanout(p.makeSlideListPayload())
}

// roleChange reassigns the target peer's role and broadcasts the
// roster so every client can re-derive the target's permissions.
func (p *Presentation) roleChange(ev event) {
	target := p.peerByID(ev.peerID)
	if target == nil {
		p.sendError(ev.peer, ErrPeerNotFound)
		return
	}

	target.role = ev.role
	p.fanout(p.makeRosterPayload())
	p.hub.log.Printf("%s@%s is now %s in %s", target.Nickname, target.ID, target.Role(), p.ID)
}

// drawAdd appends a drawn object to the slide's log and broadcasts the
// single op, not the whole log, so message size stays bounded during
// steady-state drawing.
func (p *Presentation) drawAdd(ev event) {
	s, log := p.slideAt(ev.index)
	if s == nil {
		p.sendError(ev.peer, ErrInvalidIndex)
		return
	}

	op := ev.op
	op.Kind = DrawKindAdd
	op.PeerID = ev.peer.ID
	op.At = time.Now()
	log.Append(op)
	p.fanout(p.makeDrawOpPayload(s.ID, ev.index, op))
}

// drawErase records an erase tombstone for a drawn object. Erasing an
// object that isn't currently visible is a stale client view, not an
// error: nothing is logged or broadcast.
func (p *Presentation) drawErase(ev event) {
	s, log := p.slideAt(ev.index)
	if s == nil {
		p.sendError(ev.peer, ErrInvalidIndex)
		return
	}

	op := DrawingOp{
		ID:     uuid.New().String(),
		Kind:   DrawKindErase,
		Target: ev.op.Target,
		PeerID: ev.peer.ID,
		At:     time.Now(),
	}
	if !log.Erase(op) {
		return
	}
	p.fanout(p.makeDrawOpPayload(s.ID, ev.index, op))
}

// slideSnapshot replies to the requesting peer with the visible op set
// for a slide, for late joiners and slide switches.
func (p *Presentation) slideSnapshot(ev event) {
	s, log := p.slideAt(ev.index)
	if s == nil {
		p.sendError(ev.peer, ErrInvalidIndex)
		return
	}

	ev.peer.SendData(p.makePayload(msgVisible{
		SlideID:    s.ID,
		SlideIndex: ev.index,
		Ops:        log.Visible(),
	}, TypeSlideVisible))
}

// addPeer admits a peer into the presentation, sends it the full
// state snapshot, and notifies the room of the new roster.
func (p *Presentation) addPeer(peer *Peer) {
	// Capacity is exhausted. Kick the peer out.
	if p.hub.cfg.MaxPeers > 0 && len(p.peers) >= p.hub.cfg.MaxPeers {
		peer.writeWSData(websocket.TextMessage, p.makePayload(msgError{
			Kind:    errKind(ErrFull),
			Message: ErrFull.Error(),
		}, TypeError))
		peer.close()
		return
	}

	p.peers[peer] = true
	if peer.ws != nil {
		go peer.RunListener()
		go peer.RunWriter()
	}

	// Send the joining peer the full state.
	peer.SendData(p.makeSnapshotPayload())

	// Notify all peers of the new roster.
	p.fanout(p.makeRosterPayload())
	p.hub.log.Printf("%s@%s joined %s as %s", peer.Nickname, peer.ID, p.ID, peer.Role())
}

// dropPeer removes a peer and broadcasts the shrunk roster. Dropping
// a peer that's already gone is a no-op.
func (p *Presentation) dropPeer(peer *Peer) {
	if _, ok := p.peers[peer]; !ok {
		return
	}

	delete(p.peers, peer)
	close(peer.dataQ)
	p.fanout(p.makeRosterPayload())
	p.hub.log.Printf("%s@%s left %s", peer.Nickname, peer.ID, p.ID)
}

// remove disposes a presentation by disconnecting all peers and
// removing it from the hub and the store.
func (p *Presentation) remove() {
	p.mut.Lock()
	p.closed = true
	p.mut.Unlock()

	for peer := range p.peers {
		peer.writeWSControl(websocket.FormatCloseMessage(
			websocket.CloseNormalClosure, "presentation closed"))
		delete(p.peers, peer)
	}

	close(p.eventQ)
	close(p.peerQ)
	p.hub.removePresentation(p.ID)
}

// queuePeerReq queues a peer addition / removal request to the
// presentation.
func (p *Presentation) queuePeerReq(reqType string, peer *Peer) {
	if p.isClosed() {
		return
	}
	p.peerQ <- peerReq{reqType: reqType, peer: peer}
}

// queueEvent queues an inbound operation for the run loop.
func (p *Presentation) queueEvent(ev event) {
	if p.isClosed() {
		return
	}
	p.eventQ <- ev
}

func (p *Presentation) isClosed() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.closed
}

// appendSlide mints a slide with a label derived from the new slide
// count and an empty drawing log.
func (p *Presentation) appendSlide() *Slide {
	s := &Slide{
		ID:    uuid.New().String(),
		Label: fmt.Sprintf("Slide %d", len(p.slides)+1),
	}
	p.slides = append(p.slides, s)
	p.drawings[s.ID] = NewDrawingLog()
	return s
}

// slideAt resolves a positional index to the slide and its log.
func (p *Presentation) slideAt(index int) (*Slide, *DrawingLog) {
	if index < 0 || index >= len(p.slides) {
		return nil, nil
	}
	s := p.slides[index]
	return s, p.drawings[s.ID]
}

// peerByID finds a connected peer by its connection ID.
func (p *Presentation) peerByID(id string) *Peer {
	for peer := range p.peers {
		if peer.ID == id {
			return peer
		}
	}
	return nil
}

// fanout broadcasts a payload to all connected peers.
func (p *Presentation) fanout(data []byte) {
	for peer := range p.peers {
		peer.SendData(data)
	}
}

// sendError reports a rejection to the requesting peer alone.
func (p *Presentation) sendError(peer *Peer, err error) {
	peer.SendData(p.makePayload(msgError{
		Kind:    errKind(err),
		Message: err.Error(),
	}, TypeError))
}

// roster returns the connected peers with their roles.
func (p *Presentation) roster() []msgPeer {
	peers := make([]msgPeer, 0, len(p.peers))
	for peer := range p.peers {
		peers = append(peers, msgPeer{ID: peer.ID, Nickname: peer.Nickname, Role: peer.Role()})
	}
	return peers
}

// makeSnapshotPayload prepares the full-state payload sent to a peer
// on join: slides, roster, and the visible drawing set per slide.
func (p *Presentation) makeSnapshotPayload() []byte {
	drawings := make(map[string][]DrawingOp, len(p.drawings))
	for id, l := range p.drawings {
		drawings[id] = l.Visible()
	}
	return p.makePayload(msgSnapshot{
		ID:       p.ID,
		Slides:   p.slides,
		Peers:    p.roster(),
		Drawings: drawings,
	}, TypeSessionSnapshot)
}

// makeRosterPayload prepares a message payload with the list of peers.
func (p *Presentation) makeRosterPayload() []byte {
	return p.makePayload(p.roster(), TypeRoster)
}

// makeSlideListPayload prepares a message payload with the ordered
// slide list.
func (p *Presentation) makeSlideListPayload() []byte {
	return p.makePayload(p.slides, TypeSlideList)
}

// makeDrawOpPayload prepares an incremental drawing update.
func (p *Presentation) makeDrawOpPayload(slideID string, index int, op DrawingOp) []byte {
	return p.makePayload(msgDrawOp{
		SlideID:    slideID,
		SlideIndex: index,
		Op:         op,
	}, TypeDrawOp)
}

// makePayload prepares a message payload.
func (p *Presentation) makePayload(data interface{}, typ string) []byte {
	m := msgWrap{
		Timestamp: time.Now(),
		Type:      typ,
		Data:      data,
	}
	b, _ := json.Marshal(m)
	return b
}

// ErrorPayload prepares a standalone error payload for transport
// handlers that reject a connection before it's bound to a
// presentation.
func ErrorPayload(err error) []byte {
	m := msgWrap{
		Timestamp: time.Now(),
		Type:      TypeError,
		Data: msgError{
			Kind:    errKind(err),
			Message: err.Error(),
		},
	}
	b, _ := json.Marshal(m)
	return b
}
