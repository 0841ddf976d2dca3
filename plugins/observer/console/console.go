package console

import (
	"bufio"
	"fmt"
	"io"

	"pagescan/pkg/contract"
)

// 默认探测偏移：每页报告第 4 个字节。
const DefaultProbeOffset = 3

// Options 控制诊断输出格式。
type Options struct {
	// ProbeOffset: 每页报告的字节偏移；nil 使用默认 3。
	ProbeOffset *int `json:"probe_offset,omitempty"`
	// Format: "char"（默认，原样输出字节）或 "hex"（两位十六进制）。
	Format string `json:"format,omitempty"`
	// HideProbes: 为 true 时不输出探测路径，只输出页字节。
	HideProbes bool `json:"hide_probes,omitempty"`
}

// Observer 将探测路径与页字节逐行写入 io.Writer。
type Observer struct {
	w      *bufio.Writer
	offset int
	hex    bool
	probes bool
}

// New 创建控制台观察者。out 为 nil 时返回错误。
func New(out io.Writer, opts *Options) (*Observer, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: observer output is nil", contract.ErrInvalidInput)
	}
	o := &Observer{w: bufio.NewWriter(out), offset: DefaultProbeOffset, probes: true}
	if opts != nil {
		if opts.ProbeOffset != nil {
			if *opts.ProbeOffset < 0 {
				return nil, fmt.Errorf("%w: probe_offset must be >= 0", contract.ErrInvalidInput)
			}
			o.offset = *opts.ProbeOffset
		}
		switch opts.Format {
		case "", "char":
		case "hex":
			o.hex = true
		default:
			return nil, fmt.Errorf("%w: unknown format %q", contract.ErrInvalidInput, opts.Format)
		}
		o.probes = !opts.HideProbes
	}
	return o, nil
}

var _ contract.Observer = (*Observer)(nil)

// Probe 输出构造出的页路径。
func (o *Observer) Probe(path string) error {
	if !o.probes {
		return nil
	}
	if _, err := o.w.WriteString(path); err != nil {
		return err
	}
	return o.w.WriteByte('\n')
}

// Page 输出偏移处的单个字节；页短于偏移时输出 "-"。
func (o *Observer) Page(ev contract.PageReadEvent) error {
	var err error
	switch {
	case o.offset >= len(ev.Data):
		_, err = o.w.WriteString("-")
	case o.hex:
		_, err = fmt.Fprintf(o.w, "%02x", ev.Data[o.offset])
	default:
		err = o.w.WriteByte(ev.Data[o.offset])
	}
	if err != nil {
		return err
	}
	if err := o.w.WriteByte('\n'); err != nil {
		return err
	}
	// 每页刷新，保证与探测行交错顺序
	return o.w.Flush()
}

// Flush 写出缓冲中剩余的探测行；每条记录结束后由调用方调用。
func (o *Observer) Flush() error { return o.w.Flush() }
