package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"pagescan/internal/ledger"
	"pagescan/internal/pipeline"
	"pagescan/pkg/registry"
	"pagescan/plugins/scanner/sequential"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Manifest) == "" {
		return errors.New("config: manifest path cannot be empty")
	}
	if strings.TrimSpace(cfg.RootDir) == "" {
		return errors.New("config: root_dir cannot be empty")
	}
	if cfg.MaxRecords < 0 {
		return errors.New("config: max_records must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q invalid", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。
	d := Defaults()
	if name := effName(cfg.Components.Manifest, d.Components.Manifest); registry.Manifest[name] == nil {
		return fmt.Errorf("config: manifest format %q not registered", name)
	}
	if name := effName(cfg.Components.Scanner, d.Components.Scanner); registry.Scanner[name] == nil {
		return fmt.Errorf("config: scanner %q not registered", name)
	}
	if name := effName(cfg.Components.Observer, d.Components.Observer); registry.Observer[name] == nil {
		return fmt.Errorf("config: observer %q not registered", name)
	}
	// writer 可为空（不写报告）
	if name := cfg.Components.Writer; name != "" && registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings；out 为诊断输出（通常为 stdout）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 返回的 io.Closer 释放装配期打开的资源（历史库），调用方负责关闭。
func Assemble(cfg Config, out io.Writer) (pipeline.Components, pipeline.Settings, io.Closer, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, err
	}

	d := Defaults()
	mn := effName(cfg.Components.Manifest, d.Components.Manifest)
	sn := effName(cfg.Components.Scanner, d.Components.Scanner)
	on := effName(cfg.Components.Observer, d.Components.Observer)

	mf, err := registry.Manifest[mn](cfg.Options.Manifest)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, fmt.Errorf("config: manifest options: %w", err)
	}
	sc, err := registry.Scanner[sn](cfg.Options.Scanner, sequential.OSRoot(cfg.RootDir))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, fmt.Errorf("config: scanner options: %w", err)
	}
	obs, err := registry.Observer[on](cfg.Options.Observer, out)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, fmt.Errorf("config: observer options: %w", err)
	}

	// 清单所在目录作为独立文件系统；名称取基名
	manifest := strings.TrimSpace(cfg.Manifest)
	comp := pipeline.Components{
		ManifestFS: osfs.New(filepath.Dir(manifest)),
		Manifest:   mf,
		Scanner:    sc,
		Observer:   obs,
	}
	if wn := cfg.Components.Writer; wn != "" {
		w, err := registry.Writer[wn](cfg.Options.Writer)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, nil, fmt.Errorf("config: writer options: %w", err)
		}
		comp.Writer = w
	}

	var closer io.Closer = nopCloser{}
	if p := strings.TrimSpace(cfg.Ledger); p != "" {
		st, err := ledger.Open(p)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, nil, fmt.Errorf("config: ledger: %w", err)
		}
		comp.Ledger = st
		closer = st
	}

	set := pipeline.Settings{
		Manifest:      filepath.Base(manifest),
		ManifestLabel: manifest,
		MaxRecords:    cfg.MaxRecords,
	}
	return comp, set, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
