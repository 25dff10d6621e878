// Package socket implements a Socket.IO client session over gorilla/websocket.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State 连接生命周期状态
type State string

const (
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateReconnecting  State = "reconnecting"
	StateReconnected   State = "reconnected"
	StateDisconnected  State = "disconnected"
	StateConnectFailed State = "connect_failed"
	StateError         State = "error"
)

// StateHandler receives every lifecycle transition with its cause, if any.
type StateHandler func(state State, err error)

// EventHandler handles one unsolicited server event.
type EventHandler func(args []json.RawMessage)

var (
	// ErrClosed is returned when the session was closed while dialing.
	ErrClosed = errors.New("socket session closed")
	// ErrServerDisconnect is the cause reported when the server ends the session.
	ErrServerDisconnect = errors.New("server disconnected the session")
)

// Session 一个到远端服务的逻辑连接：负责握手、心跳、重连、ack 关联
type Session struct {
	opts   *Options
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	running   bool
	closed    bool
	done      chan struct{}
	nextAck   int
	acks      map[int]chan json.RawMessage
	buffer    [][]byte

	writeMu sync.Mutex

	handlerMu     sync.RWMutex
	handlers      map[string][]EventHandler
	stateHandlers []StateHandler
}

// NewSession 创建会话，不会立即连接
func NewSession(opts *Options) *Session {
	if opts == nil {
		opts = DefaultOptions("")
	}

	return &Session{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		acks:     make(map[int]chan json.RawMessage),
		handlers: make(map[string][]EventHandler),
	}
}

// On registers a handler for a server-pushed event. Handlers run on the read
// goroutine in arrival order.
func (s *Session) On(event string, handler EventHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// OnState registers a lifecycle handler.
func (s *Session) OnState(handler StateHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.stateHandlers = append(s.stateHandlers, handler)
}

// Connected 是否已完成命名空间连接
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect starts the connection loop unless one is already running.
// It never blocks; progress is reported through OnState.
func (s *Session) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && !s.closed {
		return
	}

	done := make(chan struct{})
	s.done = done
	s.closed = false
	s.running = true
	go s.run(done)
}

// Close 断开连接并停止重连
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.running || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if connected {
		if data, err := EncodePacket(&Packet{Type: PacketDisconnect}); err == nil {
			_ = s.write(conn, data)
		}
	}
	return conn.Close()
}

// Emit sends an event without waiting for an acknowledgement.
func (s *Session) Emit(event string, args ...any) error {
	packet, err := NewEventPacket(nil, event, args...)
	if err != nil {
		return err
	}
	data, err := EncodePacket(packet)
	if err != nil {
		return err
	}
	s.send(data)
	return nil
}

// EmitWithAck sends an event and waits for the server's acknowledgement,
// returning its first argument. Acks are matched by packet id.
func (s *Session) EmitWithAck(ctx context.Context, event string, args ...any) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)

	s.mu.Lock()
	id := s.nextAck
	s.nextAck++
	s.acks[id] = ch
	s.mu.Unlock()

	packet, err := NewEventPacket(&id, event, args...)
	if err != nil {
		s.dropAck(id)
		return nil, err
	}
	data, err := EncodePacket(packet)
	if err != nil {
		s.dropAck(id)
		return nil, err
	}

	s.send(data)

	select {
	case raw := <-ch:
		return raw, nil
	case <-ctx.Done():
		s.dropAck(id)
		return nil, ctx.Err()
	}
}

// PendingAcks 尚未收到确认的请求数
func (s *Session) PendingAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acks)
}

func (s *Session) dropAck(id int) {
	s.mu.Lock()
	delete(s.acks, id)
	s.mu.Unlock()
}

// send 已连接时直接写出，否则放入缓冲区，连接建立后按顺序补发
func (s *Session) send(data []byte) {
	s.mu.Lock()
	conn := s.conn
	if !s.connected || conn == nil {
		s.buffer = append(s.buffer, data)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.write(conn, data); err != nil {
		s.opts.logger().Printf("[socket] write failed, packet kept for next connection: %v", err)
		s.mu.Lock()
		s.buffer = append(s.buffer, data)
		s.mu.Unlock()
		conn.Close()
	}
}

func (s *Session) write(conn *websocket.Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(conn, data)
}

func (s *Session) writeLocked(conn *websocket.Conn, data []byte) error {
	if s.opts.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// run 连接主循环，带退避重连
func (s *Session) run(done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
	}()

	attempt := 0
	for {
		if attempt == 0 {
			s.notify(StateConnecting, nil)
		} else {
			s.notify(StateReconnecting, nil)
		}

		wasConnected, err := s.serve(done, attempt > 0)
		if wasConnected {
			s.notify(StateDisconnected, err)
			attempt = 0
		} else if !isDone(done) {
			s.notify(StateConnectFailed, err)
		}

		if isDone(done) || !s.opts.Reconnection {
			return
		}

		attempt++
		if limit := s.opts.ReconnectionAttempts; limit > 0 && attempt > limit {
			s.opts.logger().Printf("[socket] giving up after %d reconnection attempts", limit)
			return
		}

		select {
		case <-done:
			return
		case <-time.After(s.opts.backoff(attempt)):
		}
	}
}

// serve 建立一次连接并处理直到断开；wasConnected 表示期间是否完成过命名空间连接
func (s *Session) serve(done chan struct{}, reconnect bool) (wasConnected bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	endpoint, err := s.opts.endpoint()
	if err != nil {
		return false, err
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, s.opts.header())
	if err != nil {
		return false, fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	if isDone(done) {
		s.mu.Unlock()
		conn.Close()
		return false, ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.connected = false
		}
		s.mu.Unlock()
		conn.Close()
	}()

	if s.opts.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	}

	var pingWait time.Duration
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return wasConnected, err
		}
		if pingWait > 0 {
			conn.SetReadDeadline(time.Now().Add(pingWait))
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			s.notify(StateError, err)
			continue
		}

		switch frame.Type {
		case FrameOpen:
			hs, err := ParseHandshake(frame.Data)
			if err != nil {
				return false, err
			}
			pingWait = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
			if pingWait > 0 {
				conn.SetReadDeadline(time.Now().Add(pingWait))
			}
			if s.opts.eio() >= 4 {
				// v4 需要客户端主动连接默认命名空间
				if err := s.write(conn, EncodeFrame(FrameMessage, string([]byte{byte(PacketConnect)}))); err != nil {
					return false, err
				}
			} else if hs.PingInterval > 0 {
				go s.pingLoop(ctx, conn, time.Duration(hs.PingInterval)*time.Millisecond)
			}

		case FramePing:
			if err := s.write(conn, EncodeFrame(FramePong, frame.Data)); err != nil {
				return wasConnected, err
			}

		case FrameClose:
			return wasConnected, ErrServerDisconnect

		case FrameMessage:
			packet := frame.Packet
			if packet.Namespace != "" && packet.Namespace != "/" {
				continue
			}

			switch packet.Type {
			case PacketConnect:
				wasConnected = true
				s.markConnected(conn)
				s.notify(StateConnected, nil)
				if reconnect {
					s.notify(StateReconnected, nil)
				}
			case PacketDisconnect:
				return wasConnected, ErrServerDisconnect
			case PacketEvent:
				s.dispatch(packet)
			case PacketAck:
				s.resolveAck(packet)
			case PacketError:
				err := fmt.Errorf("server error: %s", string(packet.Data))
				s.notify(StateError, err)
				if !wasConnected {
					return false, err
				}
			}
		}
	}
}

// markConnected 标记已连接并补发离线期间缓冲的包
func (s *Session) markConnected(conn *websocket.Conn) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.connected = true
	pending := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	for i, data := range pending {
		if err := s.writeLocked(conn, data); err != nil {
			s.opts.logger().Printf("[socket] flush failed: %v", err)
			s.mu.Lock()
			s.buffer = append(append([][]byte(nil), pending[i:]...), s.buffer...)
			s.mu.Unlock()
			conn.Close()
			return
		}
	}
}

// pingLoop Engine.IO v3 由客户端定期发送 ping
func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.write(conn, EncodeFrame(FramePing, "")); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Session) dispatch(packet *Packet) {
	name, args, err := packet.Event()
	if err != nil {
		s.notify(StateError, err)
		return
	}

	s.handlerMu.RLock()
	handlers := append([]EventHandler(nil), s.handlers[name]...)
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(args)
	}
}

func (s *Session) resolveAck(packet *Packet) {
	if packet.ID == nil {
		return
	}

	args, err := packet.Args()
	if err != nil {
		s.notify(StateError, err)
		return
	}
	raw := json.RawMessage("null")
	if len(args) > 0 {
		raw = args[0]
	}

	s.mu.Lock()
	ch, ok := s.acks[*packet.ID]
	delete(s.acks, *packet.ID)
	s.mu.Unlock()

	if ok {
		ch <- raw
	}
}

func (s *Session) notify(state State, err error) {
	s.handlerMu.RLock()
	handlers := append([]StateHandler(nil), s.stateHandlers...)
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(state, err)
	}
}

func isDone(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
