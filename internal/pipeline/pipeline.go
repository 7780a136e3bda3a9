package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"cropinv/internal/diag"
	"cropinv/internal/inventory"
	"cropinv/pkg/contract"
)

// - 文件粒度容错：单个文件失败只丢弃该文件的局部结果，计数一次后继续；
// - 行粒度容错：行级错误与处理单行时的 panic 计数、记录后跳过；
// - 并发：每个 worker 独占一份局部 Inventory，合并在互斥锁下以并集/或语义进行，结果与顺序执行一致；
// - 取消与缺失输入是唯一会终止扫描的错误。

// Components 聚合运行所需的组件。
type Components struct {
	Reader contract.Reader
	Table  contract.TableDecoder
	Writer contract.Writer
	// Names 为国家汇总提供显示名；nil 时回退为 "Country {code}"。
	Names contract.CountryNamer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Root        string
	Concurrency int
	Reporter    contract.Reporter
}

// Stats: 扫描结束时的计数。
type Stats struct {
	contract.Progress
	Entries int
}

// KV 以字符串形式返回计数，用于结构化日志。
func (s Stats) KV() map[string]string {
	return map[string]string{
		"files_processed": strconv.Itoa(s.FilesProcessed),
		"files_failed":    strconv.Itoa(s.FilesFailed),
		"rows":            strconv.Itoa(s.Rows),
		"rows_skipped":    strconv.Itoa(s.RowsSkipped),
		"row_errors":      strconv.Itoa(s.RowErrors),
		"errors":          strconv.Itoa(s.Errors()),
		"countries":       strconv.Itoa(s.Countries),
		"crops":           strconv.Itoa(s.Crops),
		"entries":         strconv.Itoa(s.Entries),
	}
}

// fileStats: 单个文件的计数，仅在文件成功时并入总计。
type fileStats struct {
	rows, skipped, rowErrors int
}

type scanner struct {
	comp     Components
	reporter contract.Reporter
	logger   *diag.Logger

	mu        sync.Mutex
	inv       *inventory.Inventory
	progress  contract.Progress
	countries inventory.Set[string]
	crops     inventory.Set[string]
}

// Scan 遍历 Root 下的全部候选文件并聚合为 Inventory。
func Scan(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*inventory.Inventory, Stats, error) {
	if comp.Reader == nil || comp.Table == nil {
		return nil, Stats{}, eris.New("pipeline: missing components")
	}
	if logger == nil {
		logger = diag.NewNopLogger()
	}
	s := &scanner{
		comp:      comp,
		reporter:  set.Reporter,
		logger:    logger,
		inv:       inventory.New(),
		countries: inventory.Set[string]{},
		crops:     inventory.Set[string]{},
	}
	if s.reporter == nil {
		s.reporter = contract.NopReporter{}
	}

	timer := logger.StartWithKV("scan", "scan start", "", map[string]string{
		"root":        set.Root,
		"concurrency": strconv.Itoa(max(set.Concurrency, 1)),
	})
	var err error
	if set.Concurrency <= 1 {
		err = comp.Reader.Iterate(ctx, set.Root, func(src contract.Source) error {
			return s.handle(ctx, src)
		})
	} else {
		err = s.scanParallel(ctx, set)
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("scan", string(code), err.Error(), nil)
		diag.IncOp("scan", "run", "error")
		diag.IncError("scan", string(code))
		return nil, Stats{}, eris.Wrap(err, "pipeline: scan")
	}
	stats := s.stats()
	timer.Finish("scan done", int64(stats.FilesProcessed))
	diag.IncOp("scan", "run", "success")
	diag.ObserveDuration("scan", "run", timer.Elapsed().Milliseconds())
	return s.inv, stats, nil
}

// scanParallel: 单个生产者遍历目录，Concurrency 个 worker 消费。
func (s *scanner) scanParallel(ctx context.Context, set Settings) error {
	g, gctx := errgroup.WithContext(ctx)
	srcs := make(chan contract.Source)
	g.Go(func() error {
		defer close(srcs)
		return s.comp.Reader.Iterate(gctx, set.Root, func(src contract.Source) error {
			select {
			case srcs <- src:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for i := 0; i < set.Concurrency; i++ {
		g.Go(func() error {
			for src := range srcs {
				if err := s.handle(gctx, src); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// handle 处理单个文件；只有取消会作为错误返回。
func (s *scanner) handle(ctx context.Context, src contract.Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fid := string(src.ID)
	s.reporter.FileStart(src.ID)
	timer := s.logger.StartWith("scan", "file start", fid)
	t0 := time.Now()

	partial, fst, err := s.processFile(ctx, src)
	dur := time.Since(t0)
	diag.ObserveDuration("scan", "file", dur.Milliseconds())
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return err
		}
		code := diag.Classify(err)
		s.logger.ErrorWith("scan", string(code), err.Error(), &t0, fid)
		diag.IncOp("scan", "file", "error")
		diag.IncError("scan", string(code))
		s.reporter.FileFinish(src.ID, 0, err, dur)
		s.mu.Lock()
		s.progress.FilesSeen++
		s.progress.FilesFailed++
		p := s.progress
		s.mu.Unlock()
		s.reporter.Progress(p)
		return nil
	}

	s.mu.Lock()
	s.inv.Merge(partial)
	for _, k := range partial.Keys() {
		s.countries.Add(k.Country)
		s.crops.Add(k.Crop)
	}
	s.progress.FilesSeen++
	s.progress.FilesProcessed++
	s.progress.Rows += fst.rows
	s.progress.RowsSkipped += fst.skipped
	s.progress.RowErrors += fst.rowErrors
	s.progress.Countries = len(s.countries)
	s.progress.Crops = len(s.crops)
	p := s.progress
	s.mu.Unlock()

	timer.Finish("file done", int64(fst.rows))
	diag.IncOp("scan", "file", "success")
	s.reporter.FileFinish(src.ID, fst.rows, nil, dur)
	s.reporter.Progress(p)
	return nil
}

// processFile 将单个文件解码为局部 Inventory。
func (s *scanner) processFile(ctx context.Context, src contract.Source) (*inventory.Inventory, fileStats, error) {
	var fst fileStats
	rc, err := src.Open()
	if err != nil {
		return nil, fst, fmt.Errorf("open %s: %w", src.ID, err)
	}
	defer rc.Close()

	partial := inventory.New()
	err = s.comp.Table.Decode(ctx, src.ID, rc, func(row contract.Row) error {
		rerr := row.Err
		if rerr == nil {
			var ok bool
			ok, rerr = processRow(partial, row)
			if rerr == nil {
				if ok {
					fst.rows++
				} else {
					fst.skipped++
				}
				return nil
			}
		}
		fst.rowErrors++
		s.logger.WarnWith("scan", string(diag.CodeRow), rerr.Error(), string(src.ID), map[string]string{"line": strconv.Itoa(row.Line)})
		diag.IncError("scan", string(diag.CodeRow))
		s.reporter.RowError(src.ID, row.Line, rerr)
		return nil
	})
	if err != nil {
		return nil, fst, err
	}
	return partial, fst, nil
}

// processRow 提取、分类并合入单行；缺少国家代码时 ok=false。
// 处理过程中的 panic 转为行级错误。
func processRow(inv *inventory.Inventory, row contract.Row) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("line %d: panic: %v: %w", row.Line, r, contract.ErrRowInvalid)
		}
	}()
	f, ok := inventory.Extract(row.Values)
	if !ok {
		return false, nil
	}
	inv.Add(inventory.Observe(f))
	return true, nil
}

func (s *scanner) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Progress: s.progress, Entries: s.inv.Len()}
}
