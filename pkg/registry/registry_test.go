package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"pagescan/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("manifest", func(t *testing.T) {
		if _, err := Manifest["tokens"](json.RawMessage(`{"max_field_bytes":0}`)); err != nil {
			t.Fatalf("manifest: %v", err)
		}
		if _, err := Manifest["tokens"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("manifest 未对未知字段报错")
		}
	})
	t.Run("scanner", func(t *testing.T) {
		if _, err := Scanner["sequential"](json.RawMessage(`{"page_size":4096}`), memfs.New()); err != nil {
			t.Fatalf("scanner: %v", err)
		}
		if _, err := Scanner["sequential"](json.RawMessage(`{"x":1}`), memfs.New()); err == nil {
			t.Fatalf("scanner 未对未知字段报错")
		}
		if _, err := Scanner["sequential"](nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("scanner 缺少文件系统应报 ErrInvalidInput: %v", err)
		}
	})
	t.Run("observer", func(t *testing.T) {
		var buf bytes.Buffer
		if _, err := Observer["console"](json.RawMessage(`{"format":"hex"}`), &buf); err != nil {
			t.Fatalf("console: %v", err)
		}
		if _, err := Observer["console"](json.RawMessage(`{"format":"bin"}`), &buf); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("console 未对非法格式报错: %v", err)
		}
		o, err := Observer["none"](nil, nil)
		if err != nil {
			t.Fatalf("none: %v", err)
		}
		if err := o.Probe("./d/s_1"); err != nil {
			t.Fatalf("none probe: %v", err)
		}
		if _, err := Observer["none"](json.RawMessage(`{"x":1}`), nil); err == nil {
			t.Fatalf("none 未对未知字段报错")
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q}`, tmp)))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		bad := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp)))
		if _, err := Writer["fs"](bad); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
	})
}
