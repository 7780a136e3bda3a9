package contract

import "time"

// Progress: 运行期计数快照。
type Progress struct {
	FilesSeen      int
	FilesProcessed int
	FilesFailed    int
	Rows           int
	RowsSkipped    int
	RowErrors      int
	Countries      int
	Crops          int
}

// Errors 返回错误总数（行级 + 文件级）。
func (p Progress) Errors() int { return p.RowErrors + p.FilesFailed }

// Reporter: 进度观察者。聚合核心只通过它对外输出进度，
// 实现必须并发安全（并发扫描时由多个 worker 调用）。
type Reporter interface {
	FileStart(id FileID)
	FileFinish(id FileID, rows int, err error, dur time.Duration)
	RowError(id FileID, line int, err error)
	Progress(p Progress)
}

// NopReporter 丢弃全部进度事件。
type NopReporter struct{}

func (NopReporter) FileStart(FileID) {}
func (NopReporter) FileFinish(FileID, int, error, time.Duration) {}
func (NopReporter) RowError(FileID, int, error) {}
func (NopReporter) Progress(Progress) {}

// CountryNamer: 国家代码 → 显示名。
type CountryNamer interface {
	Name(code string) string
}
