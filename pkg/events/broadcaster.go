// Package events provides a typed, synchronous publish/subscribe channel.
package events

import "sync"

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Broadcaster 多订阅者广播通道。Publish 在返回前按订阅顺序同步调用所有监听器。
type Broadcaster[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs []subscriber[T]
}

// NewBroadcaster 创建广播通道
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe registers fn and returns a handle that removes it again.
// Calling the handle more than once is harmless.
func (b *Broadcaster[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to the listeners registered at the time of the call.
// Listeners may subscribe or unsubscribe from inside the callback.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len 当前订阅者数量
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
