package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pagescan/pkg/contract"
)

// 清单路径与记录上限的默认值。
const (
	DefaultManifest   = contract.DefaultManifest
	DefaultMaxRecords = contract.DefaultMaxRecords
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "PAGESCAN_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Manifest:   DefaultManifest,
		RootDir:    ".",
		MaxRecords: DefaultMaxRecords,
		Logging:    Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Manifest: "tokens",
			Scanner:  "sequential",
			Observer: "console",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 未出现的 max_records 保持 -1（未设置），由 Merge 区分显式 0。
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := Config{MaxRecords: -1}
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
// YAML 先转为 JSON 再严格解码，两种格式的字段集合与校验一致。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{MaxRecords: -1}, err
		}
		raw, err := yamlToJSON(b)
		if err != nil {
			return Config{MaxRecords: -1}, fmt.Errorf("yaml %s: %w", path, err)
		}
		return LoadJSON("", raw)
	default:
		return LoadJSON(path, nil)
	}
}

func yamlToJSON(b []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if strings.TrimSpace(over.Manifest) != "" {
		out.Manifest = strings.TrimSpace(over.Manifest)
	}
	if strings.TrimSpace(over.RootDir) != "" {
		out.RootDir = strings.TrimSpace(over.RootDir)
	}
	// MaxRecords 的 0 具有语义（不限），约定 >=0 为“存在”，-1 为未覆盖。
	if over.MaxRecords >= 0 {
		out.MaxRecords = over.MaxRecords
	}
	if strings.TrimSpace(over.Ledger) != "" {
		out.Ledger = strings.TrimSpace(over.Ledger)
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}

	// 组件名（空不覆盖）
	if over.Components.Manifest != "" {
		out.Components.Manifest = over.Components.Manifest
	}
	if over.Components.Scanner != "" {
		out.Components.Scanner = over.Components.Scanner
	}
	if over.Components.Observer != "" {
		out.Components.Observer = over.Components.Observer
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Manifest) > 0 {
		out.Options.Manifest = cloneRaw(over.Options.Manifest)
	}
	if len(over.Options.Scanner) > 0 {
		out.Options.Scanner = cloneRaw(over.Options.Scanner)
	}
	if len(over.Options.Observer) > 0 {
		out.Options.Observer = cloneRaw(over.Options.Observer)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 PAGESCAN_；集合之外的键忽略。
// 支持：MANIFEST, ROOT_DIR, MAX_RECORDS, LEDGER, LOG_LEVEL, LOG_DIR,
// COMPONENTS_{MANIFEST,SCANNER,OBSERVER,WRITER}, OPTIONS_{...}_JSON。
// 数值无法解析时返回错误，避免静默忽略。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// -1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.MaxRecords = -1
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch nk {
		case "MANIFEST":
			over.Manifest = tv
		case "ROOT_DIR":
			over.RootDir = tv
		case "MAX_RECORDS":
			if tv == "" {
				continue
			}
			v, err := atoi(tv)
			if err != nil {
				return over, fmt.Errorf("%sMAX_RECORDS: %w", EnvPrefix, err)
			}
			over.MaxRecords = v
		case "LEDGER":
			over.Ledger = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_DIR":
			over.Logging.Dir = tv
		case "COMPONENTS_MANIFEST":
			over.Components.Manifest = tv
		case "COMPONENTS_SCANNER":
			over.Components.Scanner = tv
		case "COMPONENTS_OBSERVER":
			over.Components.Observer = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "OPTIONS_MANIFEST_JSON":
			over.Options.Manifest = rawOrNil(tv)
		case "OPTIONS_SCANNER_JSON":
			over.Options.Scanner = rawOrNil(tv)
		case "OPTIONS_OBSERVER_JSON":
			over.Options.Observer = rawOrNil(tv)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = rawOrNil(tv)
		}
	}
	return over, nil
}

// rawOrNil: 空值视为未设置，避免清空现有配置。
func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
