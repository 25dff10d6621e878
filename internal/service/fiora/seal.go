package fiora

import (
	"sync"
	"time"
)

// SealUserTimeout 封禁后本地拒绝请求的时长。用户封禁与 IP 封禁时效不同，这里取较短的用户封禁时长
const SealUserTimeout = 10 * time.Minute

// SealGuard is a timed breaker: once sealed, outbound calls are rejected locally
// until the cooldown elapses. There is no way to reopen it early.
type SealGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	sealed   bool
	gen      uint64
	timer    *time.Timer
}

// NewSealGuard 创建封禁守卫，cooldown <= 0 时使用 SealUserTimeout
func NewSealGuard(cooldown time.Duration) *SealGuard {
	if cooldown <= 0 {
		cooldown = SealUserTimeout
	}
	return &SealGuard{cooldown: cooldown}
}

// Seal enters the sealed state and (re)arms the cooldown timer.
func (g *SealGuard) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sealed = true
	g.gen++
	gen := g.gen

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.cooldown, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		// 旧定时器不得解除重新计时后的封禁
		if g.gen == gen {
			g.sealed = false
			g.timer = nil
		}
	})
}

// Sealed 当前是否处于封禁状态
func (g *SealGuard) Sealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sealed
}

// Cooldown returns the configured sealed duration.
func (g *SealGuard) Cooldown() time.Duration {
	return g.cooldown
}
