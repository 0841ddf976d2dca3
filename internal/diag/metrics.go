package diag

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// 进程内指标计数：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计毫秒）
var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

func metricKey(name string, labels ...string) string {
	return name + "{" + strings.Join(labels, ",") + "}"
}

func add(key string, v int64) {
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add(metricKey("op_total", comp, stage, result), 1) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add(metricKey("error_total", comp, code), 1) }

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add(metricKey("op_duration_ms", comp, stage), durMS)
}

// Metric 为一条计数快照。
type Metric struct {
	Key   string
	Value int64
}

// Snapshot 返回按键排序的当前计数。
func Snapshot() []Metric {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make([]Metric, 0, len(counters))
	for k, v := range counters {
		out = append(out, Metric{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SnapshotKV 以日志 KV 形式返回快照。
func SnapshotKV() map[string]string {
	snap := Snapshot()
	kv := make(map[string]string, len(snap))
	for _, m := range snap {
		kv[m.Key] = strconv.FormatInt(m.Value, 10)
	}
	return kv
}

// ResetMetrics 清空全部计数。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
