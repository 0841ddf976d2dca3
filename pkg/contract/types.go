package contract

// 页与清单的默认边界。
const (
	// DefaultPageSize: 单页固定读取字节数。
	DefaultPageSize = 8192
	// DefaultMaxRecords: 单次运行请求的清单记录上限（安全上限，非清单格式规则）。
	DefaultMaxRecords = 400
	// DefaultMaxFieldBytes: folder/stem 单字段的默认长度上限（字节）。
	DefaultMaxFieldBytes = 99
	// DefaultManifest: 参考部署中的清单相对路径。
	DefaultManifest = "./trace_map.csv"
)

// ManifestRecord: 清单中的一条 (folder, stem) 记录。
// 约束：
// - 读出后不可变；仅归属当前外层迭代；
// - 两个字段均为非空 token；不校验路径安全性。
type ManifestRecord struct {
	Folder string `json:"folder"`
	Stem   string `json:"stem"`
}

// PageIndex: 单条记录内从 1 开始的页序号。
type PageIndex int

// PageReadEvent: 一次成功读页。
// Data 为本页独占的新缓冲区（已截断到实际读到的字节数）；
// 观察者不得在回调返回后继续持有。
type PageReadEvent struct {
	Record ManifestRecord
	Index  PageIndex
	Path   string
	Data   []byte
	// Short: 文件短于页大小（宽松策略下仍计数）。
	Short bool
}

// ScanResult: 单条记录的扫描汇总。
type ScanResult struct {
	Pages      int   `json:"pages"`
	ShortPages int   `json:"short_pages"`
	Bytes      int64 `json:"bytes"`
}

// Add 累加另一条记录的汇总。
func (r ScanResult) Add(o ScanResult) ScanResult {
	return ScanResult{
		Pages:      r.Pages + o.Pages,
		ShortPages: r.ShortPages + o.ShortPages,
		Bytes:      r.Bytes + o.Bytes,
	}
}
