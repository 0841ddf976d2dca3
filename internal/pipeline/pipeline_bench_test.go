package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"pagescan/pkg/contract"
	"pagescan/plugins/manifest/tokens"
	"pagescan/plugins/scanner/sequential"
)

// BenchmarkRun 基准：records 条记录，每条 pages 页（内存文件系统）。
func BenchmarkRun(b *testing.B) {
	for _, tc := range []struct{ records, pages int }{{10, 4}, {100, 4}, {400, 1}} {
		b.Run(fmt.Sprintf("records=%d/pages=%d", tc.records, tc.pages), func(b *testing.B) {
			fsys := memfs.New()
			var m strings.Builder
			data := make([]byte, contract.DefaultPageSize)
			for i := 0; i < tc.records; i++ {
				fmt.Fprintf(&m, "dir%d stem\n", i)
				for p := 1; p <= tc.pages; p++ {
					if err := util.WriteFile(fsys, fmt.Sprintf("dir%d/stem_%d", i, p), data, 0o644); err != nil {
						b.Fatalf("seed: %v", err)
					}
				}
			}
			if err := util.WriteFile(fsys, "trace_map.csv", []byte(m.String()), 0o644); err != nil {
				b.Fatalf("seed manifest: %v", err)
			}
			sc, err := sequential.New(fsys, nil)
			if err != nil {
				b.Fatalf("scanner: %v", err)
			}
			comp := Components{ManifestFS: fsys, Manifest: tokens.New(nil), Scanner: sc}
			set := Settings{Manifest: "trace_map.csv", MaxRecords: contract.DefaultMaxRecords}
			b.ReportAllocs()
			b.SetBytes(int64(tc.records * tc.pages * contract.DefaultPageSize))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				sum, err := Run(context.Background(), comp, set, nil)
				if err != nil {
					b.Fatalf("run: %v", err)
				}
				if sum.Totals.Pages != tc.records*tc.pages {
					b.Fatalf("pages = %d", sum.Totals.Pages)
				}
			}
		})
	}
}
