//go:build unix

package contract

import "testing"

// 反斜杠在 unix 上是普通文件名字符。
func TestNormalizePathKeepsBackslash(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`./a\b/alpha_1`, `a\b/alpha_1`},
		{`data\alpha_1`, `data\alpha_1`},
		{`./../a\b/x_2`, `../a\b/x_2`},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.input); got != tt.expected {
			t.Errorf("NormalizePath(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
