package sequential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"

	"pagescan/pkg/contract"
)

// Options 为顺序页扫描器的可选配置。
type Options struct {
	// PageSize: 单页读取字节数。默认 8192。
	PageSize int `json:"page_size"`
	// StrictPageSize: 为 true 时短页（文件短于 PageSize）视为 ErrShortPage；
	// 默认 false：短页照常计数并标记 Short。
	StrictPageSize bool `json:"strict_page_size"`
}

// Scanner 通过 billy.Basic 按构造名逐页探测。
// 不列目录；存在性仅由 Open 的结果判定。
type Scanner struct {
	fs       billy.Basic
	pageSize int
	strict   bool
}

// errSequenceEnd: 下一页不存在，序列正常结束。
var errSequenceEnd = errors.New("page sequence exhausted")

// New 创建扫描器；fsys 为页文件所在根。
func New(fsys billy.Basic, opts *Options) (*Scanner, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: scanner filesystem is nil", contract.ErrInvalidInput)
	}
	s := &Scanner{fs: fsys, pageSize: contract.DefaultPageSize}
	if opts != nil {
		if opts.PageSize < 0 {
			return nil, fmt.Errorf("%w: page_size must be >= 0", contract.ErrInvalidInput)
		}
		if opts.PageSize > 0 {
			s.pageSize = opts.PageSize
		}
		s.strict = opts.StrictPageSize
	}
	return s, nil
}

var _ contract.PageScanner = (*Scanner)(nil)

// PageSize 返回生效的页大小。
func (s *Scanner) PageSize() int { return s.pageSize }

// Scan 自第 1 页起顺序探测，直到首个不存在的页号。
// 状态：Scanning(n) -[open ok]-> Reading(n) -> Scanning(n+1)；Scanning(n) -[不存在]-> Done。
func (s *Scanner) Scan(ctx context.Context, rec contract.ManifestRecord, obs contract.Observer) (contract.ScanResult, error) {
	if obs == nil {
		obs = contract.NopObserver{}
	}
	var res contract.ScanResult
	for iter := contract.PageIndex(1); ; iter++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		name := contract.PageFilename(rec, iter)
		if err := obs.Probe(name); err != nil {
			return res, fmt.Errorf("observer probe %q: %w", name, err)
		}
		ev, err := s.readPage(rec, iter, name)
		if errors.Is(err, errSequenceEnd) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Pages++
		res.Bytes += int64(len(ev.Data))
		if ev.Short {
			res.ShortPages++
		}
		if err := obs.Page(ev); err != nil {
			return res, fmt.Errorf("observer page %q: %w", name, err)
		}
	}
}

// readPage 打开、读取并关闭单页；句柄在任何返回路径上释放。
// 缓冲区每页新分配，不复用上一页内容。
func (s *Scanner) readPage(rec contract.ManifestRecord, iter contract.PageIndex, name string) (ev contract.PageReadEvent, err error) {
	f, err := s.fs.Open(contract.NormalizePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ev, errSequenceEnd
		}
		return ev, fmt.Errorf("%w: open %q: %w", contract.ErrPageIO, name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %q: %w", contract.ErrPageIO, name, cerr)
		}
	}()

	buf := make([]byte, s.pageSize)
	n, rerr := io.ReadFull(f, buf)
	short := false
	switch {
	case rerr == nil:
	case errors.Is(rerr, io.ErrUnexpectedEOF), errors.Is(rerr, io.EOF):
		short = true
	default:
		return ev, fmt.Errorf("%w: read %q: %w", contract.ErrPageIO, name, rerr)
	}
	if short && s.strict {
		return ev, fmt.Errorf("%w: %w: %q has %d of %d bytes", contract.ErrPageIO, contract.ErrShortPage, name, n, s.pageSize)
	}
	return contract.PageReadEvent{
		Record: rec,
		Index:  iter,
		Path:   name,
		Data:   buf[:n],
		Short:  short,
	}, nil
}
