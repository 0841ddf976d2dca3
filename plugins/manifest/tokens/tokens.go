package tokens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"pagescan/pkg/contract"
)

// Options 为 token 清单格式的可选配置。
type Options struct {
	// MaxFieldBytes: folder/stem 单字段长度上限（字节）。
	// 未提供时取默认 99；显式 0 表示不限。
	MaxFieldBytes *int `json:"max_field_bytes,omitempty"`
	// BufSize: 单个 token 允许的最大字节数（扫描缓冲上限）。默认 1MiB。
	BufSize int `json:"buf_size"`
}

// Format 将清单源解析为空白分隔的 token 对。
// 不做 CSV 分隔符/引号处理；行边界与其他空白等价。
type Format struct {
	maxField int
	bufSize  int
}

// New 创建 token 清单格式。
func New(opts *Options) *Format {
	const defaultBuf = 1 << 20
	f := &Format{maxField: contract.DefaultMaxFieldBytes, bufSize: defaultBuf}
	if opts == nil {
		return f
	}
	if opts.MaxFieldBytes != nil {
		f.maxField = *opts.MaxFieldBytes
	}
	if opts.BufSize > 0 {
		f.bufSize = opts.BufSize
	}
	return f
}

var _ contract.ManifestFormat = (*Format)(nil)

// NewReader 包装已打开的清单源。
func (f *Format) NewReader(r io.Reader) contract.ManifestReader {
	sc := bufio.NewScanner(r)
	initial := 4096
	if f.bufSize < initial {
		initial = f.bufSize
	}
	sc.Buffer(make([]byte, 0, initial), f.bufSize)
	sc.Split(bufio.ScanWords)
	return &Reader{sc: sc, maxField: f.maxField, bufSize: f.bufSize}
}

// Reader 按源顺序产出记录；EndOfInput 以 io.EOF 表示。
type Reader struct {
	sc       *bufio.Scanner
	maxField int
	bufSize  int
	n        int
	done     bool
}

// Next 读取下一对 token。
// 剩余不足两个 token 时返回 io.EOF；超长字段返回 ErrFieldTooLong（该对 token 已消费）。
// 超过 buf_size 的 token 无法跳过，扫描器不可恢复，返回非记录级错误，运行中止。
func (r *Reader) Next(ctx context.Context) (contract.ManifestRecord, error) {
	select {
	case <-ctx.Done():
		return contract.ManifestRecord{}, ctx.Err()
	default:
	}
	if r.done {
		return contract.ManifestRecord{}, io.EOF
	}
	folder, err := r.token()
	if err != nil {
		return contract.ManifestRecord{}, err
	}
	stem, err := r.token()
	if err != nil {
		// 单个悬空 token：视为 EndOfInput
		return contract.ManifestRecord{}, err
	}
	r.n++
	rec := contract.ManifestRecord{Folder: folder, Stem: stem}
	if err := contract.ValidateRecord(rec, r.maxField); err != nil {
		return contract.ManifestRecord{}, fmt.Errorf("manifest: record %d: %w", r.n, err)
	}
	return rec, nil
}

func (r *Reader) token() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	r.done = true
	if err := r.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", fmt.Errorf("manifest: token exceeds buf_size (%d bytes): %w", r.bufSize, err)
		}
		return "", fmt.Errorf("manifest: read: %w", err)
	}
	return "", io.EOF
}
