package contract

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// PageFilename 构造第 n 页的文件名：./<folder>/<stem>_<n>。
// n 为十进制、无补零；每次探测重新计算。
func PageFilename(rec ManifestRecord, n PageIndex) string {
	var b strings.Builder
	b.Grow(len(rec.Folder) + len(rec.Stem) + 16)
	b.WriteString("./")
	b.WriteString(rec.Folder)
	b.WriteByte('/')
	b.WriteString(rec.Stem)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(int(n)))
	return b.String()
}

// NormalizePath 将展示用路径规范化为文件系统打开用的名称。
// 规则：
// - 仅在以反斜杠为分隔符的平台上转换为正斜杠；其他平台上反斜杠是普通文件名字符；
// - path.Clean 清理 "."、".." 与多余分隔符；
// - 保留相对/绝对语义，不做隐式绝对化。
func NormalizePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}
