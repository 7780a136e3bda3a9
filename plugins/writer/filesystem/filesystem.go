package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cropinv/pkg/contract"
)

// replace 为测试替换点。
var replace = osReplace

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将工件写入本地目录。
type FS struct {
	root    string
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer；OutputDir 为空时返回 ErrInvalidInput。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("writer fs: output_dir required: %w", contract.ErrInvalidInput)
	}
	w := &FS{root: opts.OutputDir, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

// Commit 持久化全部工件：全部写入同目录临时文件后，先把已有目标移到备份名，再逐个 rename。
// 任一步失败都回滚：已替换的目标恢复为备份，临时文件删除，旧工件保持不变。
// 全部成功后才删除备份。
func (w *FS) Commit(ctx context.Context, artifacts []contract.Artifact) error {
	dests := make([]string, len(artifacts))
	for i, a := range artifacts {
		dest, err := w.mapPath(a.Name)
		if err != nil {
			return fmt.Errorf("artifact %q: %w", a.Name, err)
		}
		if st, err := os.Lstat(dest); err == nil && st.IsDir() {
			return fmt.Errorf("artifact %q: destination is a directory: %w", a.Name, contract.ErrPathInvalid)
		}
		dests[i] = dest
		if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
			return err
		}
	}

	temps := make([]string, 0, len(artifacts))
	removeTemps := func(from int) {
		for _, t := range temps[from:] {
			_ = os.Remove(t)
		}
	}
	for i, a := range artifacts {
		select {
		case <-ctx.Done():
			removeTemps(0)
			return ctx.Err()
		default:
		}
		tmp, err := w.stage(dests[i], a.Data)
		if err != nil {
			removeTemps(0)
			return fmt.Errorf("stage %q: %w", a.Name, err)
		}
		temps = append(temps, tmp)
	}

	// backups[i] 为空表示目标原本不存在
	backups := make([]string, len(dests))
	restore := func(upTo int) {
		for j := 0; j < upTo; j++ {
			if backups[j] != "" {
				_ = replace(backups[j], dests[j])
			} else {
				_ = os.Remove(dests[j])
			}
		}
	}
	for i, dest := range dests {
		if _, err := os.Lstat(dest); err != nil {
			continue
		}
		bak := filepath.Join(filepath.Dir(dest), ".bak-"+filepath.Base(dest)+"-"+uuid.NewString())
		if err := replace(dest, bak); err != nil {
			restore(i)
			removeTemps(0)
			return fmt.Errorf("backup %q: %w", artifacts[i].Name, err)
		}
		backups[i] = bak
	}
	for i, tmp := range temps {
		if err := replace(tmp, dests[i]); err != nil {
			// 全部目标回到提交前：备份移回原名，无备份的新文件删除
			restore(len(dests))
			removeTemps(i)
			return fmt.Errorf("replace %q: %w", artifacts[i].Name, err)
		}
	}
	for _, bak := range backups {
		if bak != "" {
			_ = os.Remove(bak)
		}
	}
	// 最佳努力：同步父目录，提升崩溃安全性
	seen := make(map[string]bool)
	for _, d := range dests {
		if dir := filepath.Dir(d); !seen[dir] {
			seen[dir] = true
			_ = syncDir(dir)
		}
	}
	return nil
}

// mapPath: Clean + Join + 越界校验。禁止绝对路径、父级逃逸、Windows 卷名。
func (w *FS) mapPath(name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(name))
	if rel == "." || rel == "" {
		return "", contract.ErrPathInvalid
	}
	if filepath.IsAbs(rel) {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

// stage 写入 dest 同目录的临时文件并 fsync，返回临时路径。
func (w *FS) stage(dest string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := bw.Write(data); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}
