package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/duelhall/internal/platform/id"
	"github.com/louisbranch/duelhall/internal/platform/timeouts"
	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
	"golang.org/x/net/websocket"
)

const defaultSendBuffer = 64

// wsPeer owns one connection's outbound queue. A single writer goroutine
// drains it so that senders never touch the socket.
type wsPeer struct {
	id     coordinator.ConnID
	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	groups map[string]struct{} // guarded by wsTransport.mu
}

func newWSPeer(connID coordinator.ConnID, conn *websocket.Conn, buffer int) *wsPeer {
	return &wsPeer{
		id:     connID,
		conn:   conn,
		out:    make(chan []byte, buffer),
		done:   make(chan struct{}),
		groups: make(map[string]struct{}),
	}
}

func (p *wsPeer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// enqueue reports false when the queue is full.
func (p *wsPeer) enqueue(frame []byte) bool {
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// shutdown stops the writer, which then closes the socket and unblocks the
// reader.
func (p *wsPeer) shutdown() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *wsPeer) writeLoop() {
	defer func() {
		_ = p.conn.Close()
	}()
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.FrameWrite))
			if _, err := p.conn.Write(frame); err != nil {
				log.Printf("match: write frame conn=%q: %v", p.id, err)
				p.shutdown()
				return
			}
		}
	}
}

// wsTransport implements coordinator.Transport over WebSocket peers.
type wsTransport struct {
	sendBuffer int

	mu     sync.Mutex
	peers  map[coordinator.ConnID]*wsPeer
	groups map[string][]coordinator.ConnID // members in join order
}

func newWSTransport(sendBuffer int) *wsTransport {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &wsTransport{
		sendBuffer: sendBuffer,
		peers:      make(map[coordinator.ConnID]*wsPeer),
		groups:     make(map[string][]coordinator.ConnID),
	}
}

// register assigns conn a fresh id and starts its writer.
func (t *wsTransport) register(conn *websocket.Conn) (*wsPeer, error) {
	connID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("assign connection id: %w", err)
	}
	peer := newWSPeer(coordinator.ConnID(connID), conn, t.sendBuffer)

	t.mu.Lock()
	t.peers[peer.id] = peer
	t.mu.Unlock()

	go peer.writeLoop()
	return peer, nil
}

// unregister forgets connID and stops its writer. Safe to call twice.
func (t *wsTransport) unregister(connID coordinator.ConnID) {
	t.mu.Lock()
	peer, ok := t.peers[connID]
	if ok {
		for group := range peer.groups {
			t.removeMemberLocked(connID, group)
		}
		delete(t.peers, connID)
	}
	t.mu.Unlock()

	if ok {
		peer.shutdown()
	}
}

// closeAll stops every peer; their readers then run the normal disconnect path.
func (t *wsTransport) closeAll() {
	t.mu.Lock()
	peers := make([]*wsPeer, 0, len(t.peers))
	for _, peer := range t.peers {
		peers = append(peers, peer)
	}
	t.mu.Unlock()

	for _, peer := range peers {
		peer.shutdown()
	}
}

func (t *wsTransport) connections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

func (t *wsTransport) JoinGroup(connID coordinator.ConnID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	peer, ok := t.peers[connID]
	if !ok {
		return
	}
	if _, member := peer.groups[group]; member {
		return
	}
	peer.groups[group] = struct{}{}
	t.groups[group] = append(t.groups[group], connID)
}

func (t *wsTransport) LeaveGroup(connID coordinator.ConnID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if peer, ok := t.peers[connID]; ok {
		delete(peer.groups, group)
	}
	t.removeMemberLocked(connID, group)
}

func (t *wsTransport) removeMemberLocked(connID coordinator.ConnID, group string) {
	members := t.groups[group]
	for i, member := range members {
		if member == connID {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(t.groups, group)
		return
	}
	t.groups[group] = members
}

func (t *wsTransport) GroupMembers(group string) []coordinator.ConnID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]coordinator.ConnID(nil), t.groups[group]...)
}

func (t *wsTransport) Emit(connID coordinator.ConnID, event string, payload any) {
	t.send(connID, event, "", payload)
}

func (t *wsTransport) Broadcast(group string, event string, payload any, except coordinator.ConnID) {
	frame, err := encodeFrame(event, "", payload)
	if err != nil {
		log.Printf("match: encode %s frame for group=%q: %v", event, group, err)
		return
	}

	t.mu.Lock()
	targets := make([]*wsPeer, 0, len(t.groups[group]))
	for _, member := range t.groups[group] {
		if member == except {
			continue
		}
		if peer, ok := t.peers[member]; ok {
			targets = append(targets, peer)
		}
	}
	t.mu.Unlock()

	for _, peer := range targets {
		deliver(peer, event, frame)
	}
}

// reply answers a request frame with an ack carrying the same request id.
func (t *wsTransport) reply(connID coordinator.ConnID, requestID string, payload any) {
	t.send(connID, frameAck, requestID, payload)
}

func (t *wsTransport) send(connID coordinator.ConnID, event string, requestID string, payload any) {
	t.mu.Lock()
	peer, ok := t.peers[connID]
	t.mu.Unlock()
	if !ok {
		return
	}

	frame, err := encodeFrame(event, requestID, payload)
	if err != nil {
		log.Printf("match: encode %s frame for conn=%q: %v", event, connID, err)
		return
	}
	deliver(peer, event, frame)
}

func deliver(peer *wsPeer, event string, frame []byte) {
	if peer.closed() {
		return
	}
	if !peer.enqueue(frame) {
		log.Printf("match: slow consumer conn=%q event=%q, closing connection", peer.id, event)
		peer.shutdown()
	}
}

// encodeFrame renders {"type","request_id","payload"} with raw payloads
// spliced in unchanged; json.Marshal would compact them.
func encodeFrame(event string, requestID string, payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = encoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("null")
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal type: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + len(eventJSON) + len(requestID) + 48)
	buf.WriteString(`{"type":`)
	buf.Write(eventJSON)
	if requestID != "" {
		requestJSON, err := json.Marshal(requestID)
		if err != nil {
			return nil, fmt.Errorf("marshal request id: %w", err)
		}
		buf.WriteString(`,"request_id":`)
		buf.Write(requestJSON)
	}
	buf.WriteString(`,"payload":`)
	buf.Write(raw)
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
