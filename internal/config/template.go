package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 清单与上限取默认值，页文件根为当前目录；
// - 启用 fs 报告 Writer（./reports）与 SQLite 历史（./pagescan.db）；
// - 选项包含所有键，值为中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Manifest:   d.Manifest,
		RootDir:    d.RootDir,
		MaxRecords: d.MaxRecords,
		Ledger:     "pagescan.db",
		Logging:    d.Logging,
		Components: d.Components,
	}
	cfg.Components.Writer = "fs"
	cfg.Options.Manifest = json.RawMessage(`{
  "max_field_bytes": 99,
  "buf_size": 1048576
}`)
	cfg.Options.Scanner = json.RawMessage(`{
  "page_size": 8192,
  "strict_page_size": false
}`)
	cfg.Options.Observer = json.RawMessage(`{
  "probe_offset": 3,
  "format": "char",
  "hide_probes": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "reports",
  "atomic": true,
  "flat": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
