package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cropinv/pkg/contract"
)

// Terminal: 终端进度提示（非日志），实现 contract.Reporter。
// - TTY: 单行 \r 覆盖；非 TTY: 每 every 个文件打印一行。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool
	every   int

	concurrency int
	root        string
	runStart    time.Time
	last        contract.Progress

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

var _ contract.Reporter = (*Terminal)(nil)

// NewTerminal 构造终端提示器；every<=0 时按 100 个文件打点。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool, every int) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	if every <= 0 {
		every = 100
	}
	t := &Terminal{w: w, enabled: enabled, every: every}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				t.isTTY = fi.Mode()&os.ModeCharDevice != 0
			}
		}
	}
	return t
}

// RunStart 记录运行上下文。
func (t *Terminal) RunStart(root string, concurrency int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.root = root
	t.concurrency = concurrency
	t.runStart = time.Now()
	t.last = contract.Progress{}
	t.println(fmt.Sprintf("[run] 扫描 %s | 并发=%d", safe(root), concurrency))
}

func (t *Terminal) FileStart(contract.FileID) {}

// FileFinish 失败文件单独打印一行。
func (t *Terminal) FileFinish(id contract.FileID, rows int, err error, dur time.Duration) {
	if t == nil || err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.clearInline()
	t.println(fmt.Sprintf("[fail] %s | %s | %s", shortenBase(string(id), 48), safe(err.Error()), formatDur(dur)))
}

func (t *Terminal) RowError(contract.FileID, int, error) {}

// Progress 按 every 节流打印累计计数。
func (t *Terminal) Progress(p contract.Progress) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	crossed := p.FilesSeen/t.every > t.last.FilesSeen/t.every
	t.last = p
	line := fmt.Sprintf("[scan] 文件 %d | 行 %d | 错误 %d | 国家 %d | 作物 %d | 用时 %s",
		p.FilesSeen, p.Rows, p.Errors(), p.Countries, p.Crops, formatSince(t.runStart))
	if t.isTTY {
		now := time.Now()
		if !crossed && now.Sub(t.lastFlush) < 100*time.Millisecond {
			return
		}
		t.lastFlush = now
		t.printInline(line)
		return
	}
	if crossed {
		t.println(line)
	}
}

// RunFinish 结束总览。
func (t *Terminal) RunFinish(p contract.Progress, entries int, ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.clearInline()
	t.println(fmt.Sprintf("[%s] 文件 %d (失败 %d) | 行 %d (跳过 %d, 错误 %d) | 国家 %d | 作物 %d | 条目 %d | 总用时 %s",
		tag, p.FilesProcessed, p.FilesFailed, p.Rows, p.RowsSkipped, p.RowErrors, p.Countries, p.Crops, entries, formatDur(dur)))
}

// Println 打印任意提示行。
func (t *Terminal) Println(s string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearInline()
	t.println(s)
}

func (t *Terminal) clearInline() {
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		_, _ = io.WriteString(t.w, "\r")
		t.lastLen = 0
	}
}

func (t *Terminal) println(s string) {
	if !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if !t.enabled {
		return
	}
	// 新行比旧行短时以空格覆盖残留
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if visLen(base) <= max {
		return base
	}
	rs := []rune(base)
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
