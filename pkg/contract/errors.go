package contract

import "errors"

// 最小错误分类。
var (
	// ErrManifestUnavailable: 清单源无法打开；整次运行中止。
	ErrManifestUnavailable = errors.New("manifest unavailable")
	// ErrPageIO: 页文件存在但打开/读取失败（非“不存在”）；仅影响当前记录。
	ErrPageIO = errors.New("page io error")
	// ErrShortPage: 严格模式下页文件短于页大小。
	ErrShortPage = errors.New("short page")
	// ErrInvalidInput: 输入不满足最小约束。
	ErrInvalidInput = errors.New("invalid input")
	// ErrFieldTooLong: 清单字段超出长度上限。
	ErrFieldTooLong = errors.New("manifest field too long")
	// ErrPathInvalid: 工件标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)

// IsRecordError 判断错误是否只影响单条记录（运行应继续）。
func IsRecordError(err error) bool {
	return errors.Is(err, ErrPageIO) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrFieldTooLong)
}
