package rate

import (
	"testing"
	"time"
)

// UT-RTE-01: 超过额度后拒绝并给出重试间隔
func TestGateAllowLimit(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 60, Burst: 2}, clk)
	for i := 0; i < 2; i++ {
		if ok, _ := g.Allow("a"); !ok {
			t.Fatalf("第 %d 次应通过", i+1)
		}
	}
	ok, wait := g.Allow("a")
	if ok || wait != time.Second {
		t.Fatalf("应拒绝并等待 1s: ok=%v wait=%v", ok, wait)
	}
	if ok, _ := g.Allow("b"); !ok {
		t.Fatalf("客户端之间互不影响")
	}
	now = now.Add(time.Second)
	if ok, _ := g.Allow("a"); !ok {
		t.Fatalf("补充后应通过")
	}
}

// UT-RTE-02: 未启用时总是放行
func TestGateDisabled(t *testing.T) {
	g := NewGate(Limits{}, nil)
	for i := 0; i < 100; i++ {
		if ok, _ := g.Allow("x"); !ok {
			t.Fatalf("未启用不应拒绝")
		}
	}
	if g.Clients() != 0 || g.Sweep() != 0 {
		t.Fatalf("未启用不应跟踪客户端")
	}
	var nilGate *Gate
	if nilGate.Enabled() {
		t.Fatalf("nil gate 应视为未启用")
	}
}

// UT-RTE-03: 回满的客户端被清理；时钟回拨不补充
func TestGateSweep(t *testing.T) {
	now := time.Unix(100, 0)
	clk := func() time.Time { return now }
	g := NewGate(Limits{RPM: 60}, clk)
	g.Allow("a")
	for i := 0; i < 5; i++ {
		g.Allow("b")
	}
	now = now.Add(-time.Minute)
	if ok, _ := g.Allow("a"); !ok {
		t.Fatalf("容量 60 仍有余量")
	}
	now = time.Unix(100, 0).Add(2 * time.Second)
	if n := g.Sweep(); n != 1 || g.Clients() != 1 {
		t.Fatalf("应只清理 a: n=%d clients=%d", n, g.Clients())
	}
}
