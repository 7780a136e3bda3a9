package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cropinv/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// MatchSubstrings: 文件基名（小写）包含任一子串即视为候选。默认 ["cropdata"]。
	MatchSubstrings []string `json:"match_substrings"`
	// ExcludeDirNames: 递归时跳过这些目录名（基名，大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// IncludeHiddenDirs: 默认跳过以 "." 开头的目录。
	IncludeHiddenDirs bool `json:"include_hidden_dirs"`
}

// FileSystem 遍历目录树，按稳定顺序产出候选数据文件。
type FileSystem struct {
	bufSize    int
	match      []string
	excludeDir map[string]struct{}
	hidden     bool
}

var _ contract.Reader = (*FileSystem)(nil)

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, match: []string{"cropdata"}, excludeDir: make(map[string]struct{})}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if len(opts.MatchSubstrings) > 0 {
		r.match = r.match[:0]
		for _, s := range opts.MatchSubstrings {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				r.match = append(r.match, s)
			}
		}
	}
	for _, name := range opts.ExcludeDirNames {
		if name == "" {
			continue
		}
		// 小写基名匹配，调用方无需关心大小写
		r.excludeDir[strings.ToLower(name)] = struct{}{}
	}
	r.hidden = opts.IncludeHiddenDirs
	return r
}

// Iterate 遍历 root 目录树，对每个候选文件调用 yield。
// root 不存在或不是目录时返回 ErrMissingInput；子目录不可读时跳过该子目录。
func (r *FileSystem) Iterate(ctx context.Context, root string, yield func(src contract.Source) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("data dir %q: %v: %w", root, err, contract.ErrMissingInput)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %q is not a directory: %w", root, contract.ErrMissingInput)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("data dir %q: %v: %w", root, err, contract.ErrMissingInput)
	}
	return r.walkEntries(ctx, root, entries, yield)
}

// Match 报告文件基名是否为候选数据文件。
func (r *FileSystem) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range r.match {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func (r *FileSystem) skipDir(name string) bool {
	if !r.hidden && strings.HasPrefix(name, ".") {
		return true
	}
	_, skip := r.excludeDir[strings.ToLower(name)]
	return skip
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.Source) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// 不可读子目录：跳过，不影响其余部分
		return nil
	}
	return r.walkEntries(ctx, dir, entries, yield)
}

func (r *FileSystem) walkEntries(ctx context.Context, dir string, entries []os.DirEntry, yield func(contract.Source) error) error {
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先文件（允许指向常规文件的符号链接）
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.IsDir() || !r.Match(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil || !t.Mode().IsRegular() {
				// 失效链接或指向非常规文件：忽略
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		if err := yield(r.source(p)); err != nil {
			return err
		}
	}
	// 再目录（不跟随目录符号链接）
	for _, e := range entries {
		if !e.IsDir() || r.skipDir(e.Name()) {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	return nil
}

// source 延迟打开：文件在处理时才打开，打开失败由调用方按文件级错误处理。
func (r *FileSystem) source(p string) contract.Source {
	bufSize := r.bufSize
	return contract.Source{
		ID: contract.NormalizeFileID(p),
		Open: func() (io.ReadCloser, error) {
			f, err := os.Open(p)
			if err != nil {
				return nil, err
			}
			return newBufferedCloser(f, bufSize), nil
		},
	}
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
