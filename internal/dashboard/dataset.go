package dashboard

import (
	"slices"

	"cropinv/internal/inventory"
	"cropinv/internal/pipeline"
	"cropinv/pkg/contract"
)

// CountryIndex: 显示名与地图代码查询（countries.Registry 实现）。
type CountryIndex interface {
	contract.CountryNamer
	ISO3(code string) (string, bool)
}

// Record: 汇总记录附加国家显示名与 ISO3 地图代码。
// MapCode 为空表示映射缺失，此类记录不进入地图视图。
type Record struct {
	inventory.SummaryRecord
	CountryName string
	MapCode     string
}

// Dataset: 仪表盘只读数据集；构建后不再修改，可被并发请求共享。
type Dataset struct {
	Records   []Record
	Inventory *inventory.Inventory
	Countries []inventory.CountrySummaryRecord
}

// 没有任何年份时的默认区间。
const (
	DefaultYearMin = 1900
	DefaultYearMax = 2023
)

// NewDataset 由一次运行（或读回）的结果构建数据集。idx 可为 nil。
func NewDataset(res pipeline.Result, idx CountryIndex) *Dataset {
	ds := &Dataset{
		Records:   make([]Record, 0, len(res.Summary)),
		Inventory: res.Inventory,
		Countries: res.Countries,
	}
	if ds.Inventory == nil {
		ds.Inventory = inventory.New()
	}
	for _, s := range res.Summary {
		rec := Record{SummaryRecord: s, CountryName: inventory.FallbackCountryName(s.CountryCode)}
		if idx != nil {
			rec.CountryName = idx.Name(s.CountryCode)
			if code, ok := idx.ISO3(s.CountryCode); ok {
				rec.MapCode = code
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

// LoadDataset 从输出目录读回清单 JSON 与汇总 CSV（必需）及国家汇总（可选）。
func LoadDataset(dir string, idx CountryIndex) (*Dataset, error) {
	var names contract.CountryNamer
	if idx != nil {
		names = idx
	}
	res, err := pipeline.Load(dir, names)
	if err != nil {
		return nil, err
	}
	return NewDataset(res, idx), nil
}

// YearBounds 返回全体记录的最早/最晚年份；均为空时返回默认区间。
func YearBounds(recs []Record) (int, int) {
	lo, hi := DefaultYearMin, DefaultYearMax
	var minSeen, maxSeen bool
	for _, r := range recs {
		if r.YearMin != nil && (!minSeen || *r.YearMin < lo) {
			lo, minSeen = *r.YearMin, true
		}
		if r.YearMax != nil && (!maxSeen || *r.YearMax > hi) {
			hi, maxSeen = *r.YearMax, true
		}
	}
	return lo, hi
}

func distinct(recs []Record, field func(Record) string) []string {
	seen := make(map[string]struct{}, len(recs))
	out := []string{}
	for _, r := range recs {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func countryOf(r Record) string { return r.CountryCode }
func cropOf(r Record) string    { return r.Crop }
