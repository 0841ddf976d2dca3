package contract

import (
	"context"
	"io"
)

// ArtifactID: 报告等输出工件的逻辑标识（相对路径形式）。
type ArtifactID string

// Writer: 将运行报告以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
