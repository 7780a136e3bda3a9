//go:build !windows

package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"cropinv/pkg/contract"
)

// TestWalkDirNonRegular 非常规文件被忽略
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	if err := syscall.Mkfifo(filepath.Join(root, "fifo_cropdata.csv"), 0o644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	if got := collect(t, New(nil), root); len(got) != 0 {
		t.Fatalf("non-regular should skip, visited %#v", got)
	}
}

// TestSymlinks 指向常规文件的链接产出；目录链接与失效链接忽略
func TestSymlinks(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(sub, "cropdata.csv"), "o")
	os.Symlink(sub, filepath.Join(root, "sub_link"))
	os.Symlink(filepath.Join(sub, "cropdata.csv"), filepath.Join(root, "link_cropdata.csv"))
	os.Symlink(filepath.Join(root, "none"), filepath.Join(root, "dangling_cropdata.csv"))

	got := collect(t, New(nil), root)
	if len(got) != 2 || got[0] != "link_cropdata.csv" || got[1] != "sub/cropdata.csv" {
		t.Fatalf("unexpected files %#v", got)
	}
}

// TestUnreadableSubdirSkipped 不可读子目录被跳过
func TestUnreadableSubdirSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可读取任意目录")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "cropdata.csv"), "x")
	writeFile(t, filepath.Join(root, "ok", "cropdata.csv"), "y")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(locked, 0o755)
	var ids []contract.FileID
	err := New(nil).Iterate(context.Background(), root, func(src contract.Source) error {
		ids = append(ids, src.ID)
		return nil
	})
	if err != nil || len(ids) != 1 {
		t.Fatalf("err=%v ids=%v", err, ids)
	}
}
