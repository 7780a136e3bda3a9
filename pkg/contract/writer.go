package contract

import "context"

// Writer: 将一次运行的全部工件持久化到目标介质。
// 约束：
//  1. 要么全部工件可见，要么保留旧工件不变（先全部暂存，再逐个替换）；
//  2. ctx 取消/超时需尽快返回；
//  3. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Commit(ctx context.Context, artifacts []Artifact) error
}
