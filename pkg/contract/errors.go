package contract

import "errors"

// 最小错误分类（运行级/文件级/行级/持久化）。
var (
	// ErrMissingInput: 必需的根目录或输入文件不存在；致命，聚合前即中止。
	ErrMissingInput = errors.New("missing input")
	// ErrFileInvalid: 候选文件无法打开或无法按表格解析；按文件粒度恢复。
	ErrFileInvalid = errors.New("file invalid")
	// ErrRowInvalid: 单行无法提取/分类；按行跳过并计数。
	ErrRowInvalid = errors.New("row invalid")
	// ErrSerialization: 聚合结果无法写成持久化格式；致命，不覆盖旧输出。
	ErrSerialization = errors.New("serialization failed")
	// ErrPathInvalid: 工件名映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用方参数非法（通用哨兵）。
	ErrInvalidInput = errors.New("invalid input")
)
