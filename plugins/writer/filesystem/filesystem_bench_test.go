package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"cropinv/pkg/contract"
)

// BenchmarkCommit 不同工件尺寸下的提交性能。
func BenchmarkCommit(b *testing.B) {
	for _, sz := range []int{1024, 1024 * 1024} {
		b.Run(fmt.Sprintf("size=%d", sz), func(b *testing.B) {
			data := bytes.Repeat([]byte("a"), sz)
			w, err := New(&Options{OutputDir: b.TempDir()})
			if err != nil {
				b.Fatalf("创建 Writer 失败: %v", err)
			}
			arts := []contract.Artifact{
				{Name: "crop_inventory.json", Data: data},
				{Name: "crop_inventory_summary.csv", Data: data},
				{Name: "country_summary.csv", Data: data},
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Commit(ctx, arts); err != nil {
					b.Fatalf("写入失败: %v", err)
				}
			}
		})
	}
}
