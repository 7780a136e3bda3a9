package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"cropinv/internal/diag"
	"cropinv/internal/inventory"
	"cropinv/pkg/contract"
)

// 输出工件名（相对 Writer 的输出根目录）。
const (
	InventoryFile      = "crop_inventory.json"
	SummaryFile        = "crop_inventory_summary.csv"
	CountrySummaryFile = "country_summary.csv"
)

// Result: 一次运行（或加载）的完整结果。
type Result struct {
	Inventory *inventory.Inventory
	Summary   []inventory.SummaryRecord
	Countries []inventory.CountrySummaryRecord
	Stats     Stats
}

// Run 执行完整流程：Scan → 投影 → 国家汇总 → 序列化 → Writer.Commit。
// 序列化全部完成后才提交；任一工件序列化失败时不写出任何文件。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	if comp.Writer == nil {
		return Result{}, eris.New("pipeline: missing writer")
	}
	if logger == nil {
		logger = diag.NewNopLogger()
	}
	start := time.Now()
	inv, stats, err := Scan(ctx, comp, set, logger)
	if err != nil {
		return Result{}, err
	}
	res := Derive(inv, comp.Names)
	res.Stats = stats

	wtimer := logger.Start("writer", "commit")
	arts, err := Artifacts(res)
	if err != nil {
		logger.Error("writer", string(diag.Classify(err)), err.Error(), nil)
		diag.IncError("writer", string(diag.Classify(err)))
		return Result{}, eris.Wrap(err, "pipeline: serialize")
	}
	if err := comp.Writer.Commit(ctx, arts); err != nil {
		code := diag.Classify(err)
		logger.Error("writer", string(code), err.Error(), nil)
		diag.IncOp("writer", "commit", "error")
		diag.IncError("writer", string(code))
		return Result{}, eris.Wrap(err, "pipeline: commit")
	}
	wtimer.Finish("commit", int64(len(arts)))
	diag.IncOp("writer", "commit", "success")

	logger.InfoKV("pipeline", "run summary", stats.KV())
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	return res, nil
}

// Derive 由 Inventory 计算汇总与国家汇总。
func Derive(inv *inventory.Inventory, names contract.CountryNamer) Result {
	recs := inventory.ProjectAll(inv)
	return Result{
		Inventory: inv,
		Summary:   recs,
		Countries: inventory.Rollup(recs, names),
		Stats:     Stats{Entries: inv.Len()},
	}
}

// Artifacts 将结果序列化为内存中的三个工件。
func Artifacts(res Result) ([]contract.Artifact, error) {
	var invBuf, sumBuf, ctyBuf bytes.Buffer
	if err := inventory.EncodeInventory(&invBuf, res.Inventory); err != nil {
		return nil, err
	}
	if err := inventory.EncodeSummary(&sumBuf, res.Summary); err != nil {
		return nil, err
	}
	if err := inventory.EncodeCountrySummary(&ctyBuf, res.Countries); err != nil {
		return nil, err
	}
	return []contract.Artifact{
		{Name: InventoryFile, Data: invBuf.Bytes()},
		{Name: SummaryFile, Data: sumBuf.Bytes()},
		{Name: CountrySummaryFile, Data: ctyBuf.Bytes()},
	}, nil
}

// Exists 报告 dir 下是否已有可复用的输出（清单 JSON 与汇总 CSV 均存在）。
func Exists(dir string) bool {
	for _, name := range []string{InventoryFile, SummaryFile} {
		if st, err := os.Stat(filepath.Join(dir, name)); err != nil || !st.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Load 读回已有输出（skip_processing）。
// 清单 JSON 与汇总 CSV 必需；国家汇总缺失时由汇总重新计算。
func Load(dir string, names contract.CountryNamer) (Result, error) {
	inv, err := loadFile(filepath.Join(dir, InventoryFile), inventory.DecodeInventory)
	if err != nil {
		return Result{}, err
	}
	recs, err := loadFile(filepath.Join(dir, SummaryFile), inventory.DecodeSummary)
	if err != nil {
		return Result{}, err
	}
	countries, err := loadFile(filepath.Join(dir, CountrySummaryFile), inventory.DecodeCountrySummary)
	if errors.Is(err, contract.ErrMissingInput) {
		countries, err = inventory.Rollup(recs, names), nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Inventory: inv,
		Summary:   recs,
		Countries: countries,
		Stats:     Stats{Entries: inv.Len()},
	}, nil
}

func loadFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, eris.Wrapf(contract.ErrMissingInput, "pipeline: load %s", path)
	}
	if err != nil {
		return zero, eris.Wrapf(err, "pipeline: load %s", path)
	}
	defer f.Close()
	v, err := decode(f)
	if err != nil {
		return zero, eris.Wrapf(err, "pipeline: load %s", path)
	}
	return v, nil
}
