// Package sockettest provides a scripted Socket.IO server for tests.
package sockettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
)

// AckFunc computes the acknowledgement for one client request.
type AckFunc func(payload json.RawMessage) any

// EmptyAck returned from an AckFunc acknowledges with no arguments at all.
type EmptyAck struct{}

// Call records one request received by the server.
type Call struct {
	Event   string
	Payload json.RawMessage
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Server speaks enough Engine.IO/Socket.IO (v3 or v4) to drive a client session.
type Server struct {
	*httptest.Server

	EIO int

	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]AckFunc
	calls    []Call
	peers    map[*peer]struct{}
	accepted int
	reject   bool
	onCall   func(Call)
}

// NewServer starts a server speaking the given Engine.IO version.
func NewServer(eio int) *Server {
	s := &Server{
		EIO:      eio,
		handlers: make(map[string]AckFunc),
		peers:    make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// Handle sets the acknowledgement for an event. Events without a handler are
// recorded but never acknowledged.
func (s *Server) Handle(event string, fn AckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

// OnCall registers a hook run for every received request before it is acknowledged.
func (s *Server) OnCall(fn func(Call)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
}

// Reject makes the server refuse new websocket upgrades.
func (s *Server) Reject(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// Calls returns the recorded requests for event, or all requests when event is empty.
func (s *Server) Calls(event string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if event == "" || c.Event == event {
			out = append(out, c)
		}
	}
	return out
}

// Accepted 已接受的连接总数
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Push emits an unsolicited event to every connected client.
func (s *Server) Push(event string, args ...any) error {
	packet, err := socket.NewEventPacket(nil, event, args...)
	if err != nil {
		return err
	}
	data, err := socket.EncodePacket(packet)
	if err != nil {
		return err
	}

	for _, p := range s.snapshot() {
		if err := p.write(data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client connection without a close handshake.
func (s *Server) DropConnections() {
	for _, p := range s.snapshot() {
		p.conn.Close()
	}
}

func (s *Server) snapshot() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	sid := uuid.NewString()
	open := fmt.Sprintf(`{"sid":%q,"upgrades":[],"pingInterval":25000,"pingTimeout":5000}`, sid)
	if err := p.write(socket.EncodeFrame(socket.FrameOpen, open)); err != nil {
		return
	}
	if s.EIO < 4 {
		if err := p.write([]byte("40")); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := socket.DecodeFrame(data)
		if err != nil {
			continue
		}

		switch frame.Type {
		case socket.FramePing:
			p.write(socket.EncodeFrame(socket.FramePong, frame.Data))
		case socket.FrameMessage:
			s.handlePacket(p, sid, frame.Packet)
		}
	}
}

func (s *Server) handlePacket(p *peer, sid string, packet *socket.Packet) {
	switch packet.Type {
	case socket.PacketConnect:
		p.write([]byte(fmt.Sprintf(`40{"sid":%q}`, sid)))
	case socket.PacketDisconnect:
		p.conn.Close()
	case socket.PacketEvent:
		name, args, err := packet.Event()
		if err != nil {
			return
		}
		call := Call{Event: name, Payload: json.RawMessage("null")}
		if len(args) > 0 {
			call.Payload = args[0]
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		handler := s.handlers[name]
		onCall := s.onCall
		s.mu.Unlock()

		if onCall != nil {
			onCall(call)
		}
		if handler == nil || packet.ID == nil {
			return
		}

		var ack *socket.Packet
		result := handler(call.Payload)
		if _, empty := result.(EmptyAck); empty {
			ack, err = socket.NewAckPacket(*packet.ID)
		} else {
			ack, err = socket.NewAckPacket(*packet.ID, result)
		}
		if err != nil {
			return
		}
		data, err := socket.EncodePacket(ack)
		if err != nil {
			return
		}
		p.write(data)
	}
}
