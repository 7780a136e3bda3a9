package diag

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"cropinv/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeMissingInput  Code = "missing_input"
	CodeFile          Code = "file"
	CodeRow           Code = "row"
	CodeSerialization Code = "serialization"
	CodeInvariant     Code = "invariant"
	CodeCancel        Code = "cancel"
	CodeIO            Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrMissingInput):
		return CodeMissingInput
	case errors.Is(err, contract.ErrSerialization):
		return CodeSerialization
	case errors.Is(err, contract.ErrFileInvalid):
		return CodeFile
	case errors.Is(err, contract.ErrRowInvalid):
		return CodeRow
	case errors.Is(err, contract.ErrInvalidInput), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
