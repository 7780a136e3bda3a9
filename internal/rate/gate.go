package rate

import (
	"sync"
	"time"
)

// Limits: 每个客户端的额度。RPM<=0 表示不启用。
type Limits struct {
	RPM   int // requests per minute
	Burst int // 桶容量；<=0 时取 RPM
}

// Gate: 按客户端键的令牌桶（并发安全）。
type Gate struct {
	mu  sync.Mutex
	clk func() time.Time
	lim Limits
	m   map[string]*bucket
}

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

// NewGate: clk 为空则使用 time.Now。
func NewGate(lim Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	if lim.Burst <= 0 {
		lim.Burst = lim.RPM
	}
	return &Gate{clk: clk, lim: lim, m: map[string]*bucket{}}
}

// Enabled 报告是否启用限流。
func (g *Gate) Enabled() bool { return g != nil && g.lim.RPM > 0 }

func newBucket(capacity int, rpm int, now time.Time) *bucket {
	return &bucket{cap: capacity, level: float64(capacity), rate: float64(rpm) / 60.0, last: now}
}

func (b *bucket) refill(now time.Time) {
	if now.Before(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

// waitFor 返回再攒够一个令牌所需时间。
func (b *bucket) waitFor() time.Duration {
	deficit := 1 - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

// Allow 为 key 消耗一个令牌；不足时返回 false 与建议的重试间隔。
func (g *Gate) Allow(key string) (bool, time.Duration) {
	if !g.Enabled() {
		return true, 0
	}
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.m[key]
	if b == nil {
		b = newBucket(g.lim.Burst, g.lim.RPM, now)
		g.m[key] = b
	}
	b.refill(now)
	if b.level >= 1 {
		b.level--
		return true, 0
	}
	return false, b.waitFor()
}

// Sweep 删除令牌已回满的客户端（等同空闲），返回删除数。
func (g *Gate) Sweep() int {
	if !g.Enabled() {
		return 0
	}
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for k, b := range g.m {
		b.refill(now)
		if b.level >= float64(b.cap) {
			delete(g.m, k)
			n++
		}
	}
	return n
}

// Clients 返回当前跟踪的客户端数（诊断）。
func (g *Gate) Clients() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
