//go:build windows

package filesystem

import (
	"errors"
	"testing"

	"cropinv/pkg/contract"
)

// TestMapPathInvalidWindows Windows 路径校验
func TestMapPathInvalidWindows(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	for _, name := range []string{"C:\\abs", "..", "."} {
		if _, err := w.mapPath(name); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("name %q expect invalid", name)
		}
	}
}
