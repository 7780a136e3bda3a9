//go:build !windows

package filesystem

import (
	"errors"
	"testing"

	"cropinv/pkg/contract"
)

// TestMapPathInvalidUnix Unix 路径校验
func TestMapPathInvalidUnix(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	for _, name := range []string{"/abs", "..", ".", "", "a/../../b"} {
		if _, err := w.mapPath(name); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("name %q expect invalid", name)
		}
	}
	if _, err := w.mapPath("sub/ok.csv"); err != nil {
		t.Fatalf("合法子路径被拒绝: %v", err)
	}
}
