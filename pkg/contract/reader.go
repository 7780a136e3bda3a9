package contract

import "context"

// Reader: 输入源抽象（目录树）。
// 约束：
// 1) 按稳定顺序逐个回调候选文件；
// 2) FileID 稳定且去平台差异化；
// 3) 不打开、不解析文件内容，仅提供 Source；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, root string, yield func(src Source) error) error
}
