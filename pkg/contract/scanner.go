package contract

import "context"

// PageScanner: 对单条记录按 1,2,3… 探测并读取页文件。
// 约束：
// 1) 探测严格顺序；第 n+1 页不早于第 n 页完成；
// 2) 首个不存在的页号终止序列（返回 nil 错误），不跨越空洞；
// 3) 存在但无法打开/读取的页返回包装 ErrPageIO 的错误；
// 4) 每个句柄在下一次探测或返回前关闭。
type PageScanner interface {
	Scan(ctx context.Context, rec ManifestRecord, obs Observer) (ScanResult, error)
}
