package contract

import (
	"io"
	"strings"
)

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Source: Reader 产出的候选文件；Open 延迟到处理时调用，
// 打开失败属于文件级错误，由调用方决定是否继续。
type Source struct {
	ID   FileID
	Open func() (io.ReadCloser, error)
}

// RawRow: 单行原始数据，列名 → 值。
// 约束：缺失/NA 单元格不出现在 map 中；列集合随源文件变化。
type RawRow map[string]string

// Get 返回列值；列缺失、值为空或仅含空白时 ok=false。
func (r RawRow) Get(col string) (string, bool) {
	v, ok := r[col]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// Row: 解码器产出的单行。
// Line 为源文件中的物理行号（表头为 1）；Err 非空表示该行为行级错误，Values 不可用。
type Row struct {
	Line   int
	Values RawRow
	Err    error
}

// Artifact: 一次运行的持久化工件（名称 + 完整内容）。
// 内容在提交前已完整序列化，避免半成品落盘。
type Artifact struct {
	Name string
	Data []byte
}
