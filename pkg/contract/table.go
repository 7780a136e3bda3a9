package contract

import (
	"context"
	"io"
)

// TableDecoder: 将单个文件的字节流解码为 RawRow 序列。
// 约束：
//  1. 首行为表头；列名按原样保留（重复列名追加 .1/.2 后缀）；
//  2. 行级问题通过 Row.Err 上报并继续；
//  3. 文件级问题（空文件、编码非法、引号损坏等）以 ErrFileInvalid 返回；
//  4. yield 返回错误时立即停止并原样返回。
type TableDecoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader, yield func(row Row) error) error
}
