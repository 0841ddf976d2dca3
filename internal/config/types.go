package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Manifest: 清单路径，默认 ./trace_map.csv。
	Manifest string `json:"manifest"`
	// RootDir: 页文件路径的解析根，默认当前目录。
	RootDir string `json:"root_dir"`
	// MaxRecords: 最多请求的记录数（>=0）。0 表示不限。
	MaxRecords int `json:"max_records"`
	// Ledger: SQLite 运行历史路径；空表示不记录。
	Ledger  string  `json:"ledger"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
// Writer 为空表示不写运行报告。
type Components struct {
	Manifest string `json:"manifest"`
	Scanner  string `json:"scanner"`
	Observer string `json:"observer"`
	Writer   string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Manifest json.RawMessage `json:"manifest"`
	Scanner  json.RawMessage `json:"scanner"`
	Observer json.RawMessage `json:"observer"`
	Writer   json.RawMessage `json:"writer"`
}
