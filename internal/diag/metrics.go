package diag

import (
	"sort"
	"strings"
	"sync"
)

// 进程内指标：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
// 通过 Snapshot 导出（仪表盘 /debug/metrics）。

// DurationStat 为单个阶段的耗时汇总。
type DurationStat struct {
	Count   int64 `json:"count"`
	TotalMS int64 `json:"total_ms"`
	MaxMS   int64 `json:"max_ms"`
}

// MetricsSnapshot 为某一时刻的指标拷贝。
type MetricsSnapshot struct {
	Ops       map[string]int64        `json:"op_total"`
	Errors    map[string]int64        `json:"error_total"`
	Durations map[string]DurationStat `json:"op_duration_ms"`
}

type registry struct {
	mu        sync.Mutex
	ops       map[string]int64
	errs      map[string]int64
	durations map[string]DurationStat
}

var metrics = newRegistry()

func newRegistry() *registry {
	return &registry{ops: map[string]int64{}, errs: map[string]int64{}, durations: map[string]DurationStat{}}
}

func key(parts ...string) string { return strings.Join(parts, "/") }

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	metrics.mu.Lock()
	metrics.ops[key(comp, stage, result)]++
	metrics.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.mu.Lock()
	metrics.errs[key(comp, code)]++
	metrics.mu.Unlock()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metrics.mu.Lock()
	k := key(comp, stage)
	d := metrics.durations[k]
	d.Count++
	d.TotalMS += durMS
	if durMS > d.MaxMS {
		d.MaxMS = durMS
	}
	metrics.durations[k] = d
	metrics.mu.Unlock()
}

// Snapshot 返回当前指标拷贝。
func Snapshot() MetricsSnapshot {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	s := MetricsSnapshot{
		Ops:       make(map[string]int64, len(metrics.ops)),
		Errors:    make(map[string]int64, len(metrics.errs)),
		Durations: make(map[string]DurationStat, len(metrics.durations)),
	}
	for k, v := range metrics.ops {
		s.Ops[k] = v
	}
	for k, v := range metrics.errs {
		s.Errors[k] = v
	}
	for k, v := range metrics.durations {
		s.Durations[k] = v
	}
	return s
}

// Keys 返回快照中的 op 键（升序），便于终端打印。
func (s MetricsSnapshot) Keys() []string {
	out := make([]string, 0, len(s.Ops))
	for k := range s.Ops {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResetMetrics 清空全部指标（测试用）。
func ResetMetrics() {
	metrics.mu.Lock()
	metrics.ops = map[string]int64{}
	metrics.errs = map[string]int64{}
	metrics.durations = map[string]DurationStat{}
	metrics.mu.Unlock()
}
