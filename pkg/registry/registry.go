package registry

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/go-git/go-billy/v5"

	"pagescan/pkg/contract"
	mtok "pagescan/plugins/manifest/tokens"
	ocon "pagescan/plugins/observer/console"
	sseq "pagescan/plugins/scanner/sequential"
	wfs "pagescan/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewManifest 工厂签名：接收原样 JSON Options。
type NewManifest func(raw json.RawMessage) (contract.ManifestFormat, error)

// NewScanner 工厂签名：接收原样 JSON Options 与页文件根。
type NewScanner func(raw json.RawMessage, root billy.Basic) (contract.PageScanner, error)

// NewObserver 工厂签名：接收原样 JSON Options 与诊断输出。
type NewObserver func(raw json.RawMessage, out io.Writer) (contract.Observer, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Manifest 清单格式注册表（显式、零反射）。
var Manifest = map[string]NewManifest{
	// tokens: 空白分隔的 (folder, stem) token 对
	"tokens": func(raw json.RawMessage) (contract.ManifestFormat, error) {
		var opts mtok.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mtok.New(&opts), nil
	},
}

// Scanner 页扫描器注册表。
var Scanner = map[string]NewScanner{
	// sequential: 自 1 起逐页探测，首个缺页即止
	"sequential": func(raw json.RawMessage, root billy.Basic) (contract.PageScanner, error) {
		var opts sseq.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sseq.New(root, &opts)
	},
}

// Observer 诊断输出注册表。
var Observer = map[string]NewObserver{
	"console": func(raw json.RawMessage, out io.Writer) (contract.Observer, error) {
		var opts ocon.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ocon.New(out, &opts)
	},
	// none: 丢弃全部诊断输出
	"none": func(raw json.RawMessage, _ io.Writer) (contract.Observer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return contract.NopObserver{}, nil
	},
}

// Writer 报告输出注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
