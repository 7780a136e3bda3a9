package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cropinv/pkg/contract"
)

func writeFile(t *testing.T, p, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func collect(t *testing.T, r *FileSystem, root string) []string {
	t.Helper()
	var files []string
	err := r.Iterate(context.Background(), root, func(src contract.Source) error {
		rel, _ := filepath.Rel(root, string(src.ID))
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return files
}

// TestIterateMatch 仅产出文件名含 cropdata 的文件，顺序稳定
func TestIterateMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "KE", "LA_cropdata.csv"), "a")
	writeFile(t, filepath.Join(dir, "KE", "notes.txt"), "n")
	writeFile(t, filepath.Join(dir, "UG", "admin", "CropData_2020.CSV"), "b")
	writeFile(t, filepath.Join(dir, "cropdata_root.csv"), "c")
	writeFile(t, filepath.Join(dir, "AO", "other.csv"), "o")

	got := collect(t, New(nil), dir)
	want := []string{"cropdata_root.csv", "KE/LA_cropdata.csv", "UG/admin/CropData_2020.CSV"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v want %v", got, want)
	}
}

// TestIterateLazyOpen Source 延迟打开
func TestIterateLazyOpen(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "LA_cropdata.csv")
	writeFile(t, fp, "hello")
	var got []byte
	err := New(nil).Iterate(context.Background(), dir, func(src contract.Source) error {
		if src.ID != contract.NormalizeFileID(fp) {
			t.Fatalf("file id mismatch %s", src.ID)
		}
		rc, err := src.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		got, _ = io.ReadAll(rc)
		return nil
	})
	if err != nil || string(got) != "hello" {
		t.Fatalf("iterate: %v %q", err, string(got))
	}
}

// TestHiddenAndExcludedDirs 跳过隐藏目录与排除目录
func TestHiddenAndExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "cropdata.csv"), "h")
	writeFile(t, filepath.Join(dir, "Archive", "cropdata.csv"), "x")
	writeFile(t, filepath.Join(dir, "keep", "cropdata.csv"), "k")

	got := collect(t, New(&Options{ExcludeDirNames: []string{"archive"}}), dir)
	if len(got) != 1 || got[0] != "keep/cropdata.csv" {
		t.Fatalf("got %v", got)
	}
	got = collect(t, New(&Options{IncludeHiddenDirs: true}), dir)
	if len(got) != 3 {
		t.Fatalf("include hidden: %v", got)
	}
}

func TestMatchSubstrings(t *testing.T) {
	r := New(&Options{MatchSubstrings: []string{" Yield ", ""}})
	if !r.Match("maize_YIELD.csv") || r.Match("LA_cropdata.csv") {
		t.Fatalf("match substrings 未生效")
	}
}

// TestIterateMissingRoot 根目录缺失或不是目录
func TestIterateMissingRoot(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "cropdata.csv")
	writeFile(t, fp, "x")
	for _, root := range []string{filepath.Join(dir, "nope"), fp} {
		err := New(nil).Iterate(context.Background(), root, func(contract.Source) error { return nil })
		if !errors.Is(err, contract.ErrMissingInput) {
			t.Fatalf("%s: err = %v", root, err)
		}
	}
}

// TestYieldErrorStops yield 返回错误时立即停止
func TestYieldErrorStops(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_cropdata.csv"), "a")
	writeFile(t, filepath.Join(dir, "b_cropdata.csv"), "b")
	stop := errors.New("stop")
	n := 0
	err := New(nil).Iterate(context.Background(), dir, func(contract.Source) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cropdata.csv"), "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, dir, func(contract.Source) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx cancel, got %v", err)
	}
}

// TestOpenAfterRemove 文件在打开前被删除：Open 返回错误
func TestOpenAfterRemove(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "cropdata.csv")
	writeFile(t, fp, "x")
	var srcs []contract.Source
	_ = New(nil).Iterate(context.Background(), dir, func(src contract.Source) error {
		srcs = append(srcs, src)
		return nil
	})
	os.Remove(fp)
	if len(srcs) != 1 {
		t.Fatalf("srcs = %v", srcs)
	}
	if _, err := srcs[0].Open(); err == nil {
		t.Fatalf("expect open error")
	}
}

// TestNewBufferedCloserDefault bufSize<=0 时使用默认
func TestNewBufferedCloserDefault(t *testing.T) {
	r := io.NopCloser(strings.NewReader(""))
	bc := newBufferedCloser(r, 0)
	if bc.Reader == nil {
		t.Fatalf("nil reader")
	}
	bc.Close()
}
