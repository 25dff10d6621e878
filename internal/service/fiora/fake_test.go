package fiora_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
)

type fakeCall struct {
	Event   string
	Payload json.RawMessage
}

// fakeTransport acknowledges requests synchronously through scripted responders.
// Requests without a responder block until the context ends.
type fakeTransport struct {
	mu            sync.Mutex
	connected     bool
	connects      int
	calls         []fakeCall
	responders    map[string]func(json.RawMessage) any
	handlers      map[string][]socket.EventHandler
	stateHandlers []socket.StateHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected:  true,
		responders: make(map[string]func(json.RawMessage) any),
		handlers:   make(map[string][]socket.EventHandler),
	}
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.setConnected(false)
	return nil
}

func (f *fakeTransport) respond(event string, fn func(json.RawMessage) any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[event] = fn
}

func (f *fakeTransport) EmitWithAck(ctx context.Context, event string, args ...any) (json.RawMessage, error) {
	payload := json.RawMessage("null")
	if len(args) > 0 {
		data, err := json.Marshal(args[0])
		if err != nil {
			return nil, err
		}
		payload = data
	}

	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Event: event, Payload: payload})
	fn := f.responders[event]
	f.mu.Unlock()

	if fn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return json.Marshal(fn(payload))
}

func (f *fakeTransport) On(event string, handler socket.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeTransport) OnState(handler socket.StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, handler)
}

// push delivers a server event to the registered handlers, like the read loop.
func (f *fakeTransport) push(event string, v any) {
	data, _ := json.Marshal(v)

	f.mu.Lock()
	handlers := append([]socket.EventHandler(nil), f.handlers[event]...)
	f.mu.Unlock()

	for _, h := range handlers {
		h([]json.RawMessage{data})
	}
}

func (f *fakeTransport) state(state socket.State, err error) {
	f.mu.Lock()
	handlers := append([]socket.StateHandler(nil), f.stateHandlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(state, err)
	}
}

func (f *fakeTransport) callsFor(event string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []fakeCall
	for _, c := range f.calls {
		if c.Event == event {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

type memoryCredentials struct {
	mu     sync.Mutex
	secret string
	saves  int
}

func (m *memoryCredentials) Get(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secret, m.secret != "", nil
}

func (m *memoryCredentials) Save(ctx context.Context, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = secret
	m.saves++
	return nil
}
