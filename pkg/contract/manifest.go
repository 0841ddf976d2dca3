package contract

import (
	"context"
	"io"
)

// ManifestReader: 清单记录的惰性序列。
// 约束：
// 1) 每次 Next 产出下一对 token 组成的记录，按源顺序；
// 2) 剩余 token 不足两个或源已耗尽时返回 io.EOF（EndOfInput）；
// 3) 单记录错误（如 ErrFieldTooLong）已消费该对 token，调用方可继续；
// 4) 不可重启，不在内部起并发。
type ManifestReader interface {
	Next(ctx context.Context) (ManifestRecord, error)
}

// ManifestFormat: 将已打开的清单源包装为 ManifestReader。
// 打开/关闭清单源由编排层负责。
type ManifestFormat interface {
	NewReader(r io.Reader) ManifestReader
}
