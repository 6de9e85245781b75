package server

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/livepoll/server/internal/coordinator"
	"golang.org/x/net/websocket"
)

type wsPeer struct {
	connID string
	conn   *websocket.Conn

	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(connID string, conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		connID:  connID,
		conn:    conn,
		encoder: json.NewEncoder(conn),
	}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// connHub tracks live peers by connection ID and fans coordinator events out
// to them. Write failures mean the transport is going away; they are logged
// and never surfaced to the coordinator.
type connHub struct {
	mu    sync.Mutex
	peers map[string]*wsPeer
}

func newConnHub() *connHub {
	return &connHub{peers: make(map[string]*wsPeer)}
}

func (h *connHub) add(peer *wsPeer) {
	h.mu.Lock()
	h.peers[peer.connID] = peer
	h.mu.Unlock()
}

func (h *connHub) remove(connID string) {
	h.mu.Lock()
	delete(h.peers, connID)
	h.mu.Unlock()
}

func (h *connHub) snapshot() []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*wsPeer, 0, len(h.peers))
	for _, peer := range h.peers {
		peers = append(peers, peer)
	}
	return peers
}

func (h *connHub) peer(connID string) (*wsPeer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peer, ok := h.peers[connID]
	return peer, ok
}

// Broadcast implements coordinator.Broadcaster.
func (h *connHub) Broadcast(event coordinator.Event) {
	frame := eventFrame(event)
	for _, peer := range h.snapshot() {
		if err := peer.writeFrame(frame); err != nil {
			log.Printf("poll: broadcast %s to conn=%s failed: %v", frame.Type, peer.connID, err)
		}
	}
}

// SendTo implements coordinator.Broadcaster.
func (h *connHub) SendTo(connID string, event coordinator.Event) {
	peer, ok := h.peer(connID)
	if !ok {
		return
	}
	frame := eventFrame(event)
	if err := peer.writeFrame(frame); err != nil {
		log.Printf("poll: send %s to conn=%s failed: %v", frame.Type, connID, err)
	}
}

// CloseConn implements coordinator.Broadcaster. The reader loop for the
// connection observes the close and runs its own cleanup.
func (h *connHub) CloseConn(connID string) {
	peer, ok := h.peer(connID)
	if !ok {
		return
	}
	if err := peer.conn.Close(); err != nil {
		log.Printf("poll: close conn=%s failed: %v", connID, err)
	}
}
