package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Terminal: 终端进度提示（非日志，非诊断输出）。
// - 输出到提供的 io.Writer（建议 stderr，与 stdout 诊断行分离）。
// - TTY: 单行 \r 覆盖，标签着色；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool
	styles  map[string]lipgloss.Style

	// 运行期最小状态
	maxRecords  int
	recordsDone int
	failed      int
	pagesTotal  int
	runStart    time.Time

	// 当前记录
	curRecord string
	curSeq    int
	curPages  int

	// 输出控制
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	r := lipgloss.NewRenderer(w)
	t.styles = map[string]lipgloss.Style{
		"run":    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		"record": r.NewStyle().Foreground(lipgloss.Color("14")),
		"done":   r.NewStyle().Foreground(lipgloss.Color("10")),
		"ok":     r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		"fail":   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
	return t
}

// tag 渲染 [name] 标签；仅 TTY 着色。
func (t *Terminal) tag(name string) string {
	s := "[" + name + "]"
	if !t.isTTY {
		return s
	}
	if st, ok := t.styles[name]; ok {
		return st.Render(s)
	}
	return s
}

// RunStart: 记录运行上下文（清单、记录上限）。
func (t *Terminal) RunStart(manifest string, maxRecords int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.maxRecords = maxRecords
	t.recordsDone = 0
	t.failed = 0
	t.pagesTotal = 0
	t.runStart = time.Now()
	limit := "不限"
	if maxRecords > 0 {
		limit = fmt.Sprintf("%d", maxRecords)
	}
	t.println(fmt.Sprintf("%s 清单=%s | 记录上限=%s", t.tag("run"), safe(manifest), limit))
}

// RecordStart: 标记当前记录。
func (t *Terminal) RecordStart(seq int, folder, stem string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curSeq = seq
	t.curRecord = shorten(safe(folder+"/"+stem), 48)
	t.curPages = 0
	if !t.isTTY {
		t.println(fmt.Sprintf("%s #%d %s", t.tag("record"), seq, t.curRecord))
	}
}

// RecordProgress: 当前记录已读页数（TTY，≥100ms 节流）。
func (t *Terminal) RecordProgress(pages int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	t.curPages = pages
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("%s #%d %s | 页 %d | 用时 %s",
		t.tag("record"), t.curSeq, t.curRecord, t.curPages, formatSince(t.runStart)))
}

// RecordFinish: 完成当前记录（立即刷新并换行）。
func (t *Terminal) RecordFinish(ok bool, pages int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.recordsDone++
	t.pagesTotal += pages
	status := "done"
	if !ok {
		status = "fail"
		t.failed++
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("%s #%d %s | 页 %d | 用时 %s",
		t.tag(status), t.curSeq, t.curRecord, pages, formatDur(dur)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
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
	t.println(fmt.Sprintf("%s 全部完成 | 记录 %d | 失败 %d | 页 %d | 总用时 %s",
		t.tag(tag), t.recordsDone, t.failed, t.pagesTotal, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 新行比旧行短时以空格覆盖行尾
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shorten: 按可见宽度截断（尾部省略号）。
func shorten(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if visLen(s) <= max {
		return s
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	rs := []rune(s)
	if len(rs) <= cut {
		return string(rs)
	}
	return string(rs[:cut]) + "…"
}

// visLen: 终端可见宽度（忽略 ANSI 序列）。
func visLen(s string) int { return lipgloss.Width(s) }

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
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
