package inventory

import (
	"math"
	"strconv"
	"time"

	"cropinv/pkg/contract"
)

// Rule: 一条命名取值规则，返回 (值, 是否命中)。
type Rule[T any] struct {
	Name string
	Get  func(row contract.RawRow) (T, bool)
}

// Chain: 单个逻辑字段的有序回退链。
// 依次尝试 Rules，首个命中者胜出；全部未命中时返回 Default（HasDefault=false 时视为缺失）。
type Chain[T any] struct {
	Field      string
	Rules      []Rule[T]
	Default    T
	HasDefault bool
}

// Resolve 解析字段值；不会 panic，任何解析失败均退化到下一条规则。
func (c Chain[T]) Resolve(row contract.RawRow) (T, bool) {
	for _, r := range c.Rules {
		if v, ok := r.Get(row); ok {
			return v, true
		}
	}
	return c.Default, c.HasDefault
}

// RuleNames 返回规则名（按尝试顺序），便于诊断与测试。
func (c Chain[T]) RuleNames() []string {
	out := make([]string, len(c.Rules))
	for i, r := range c.Rules {
		out[i] = r.Name
	}
	return out
}

func column(name string) Rule[string] {
	return Rule[string]{Name: name, Get: func(row contract.RawRow) (string, bool) { return row.Get(name) }}
}

// integerColumn 将列按数值解析为年份，小数向零截断（"2019.5" → 2019）。
// 可解析即命中，0 也命中：链不再回退到日期列，由 Extract 视为未知年份。
func integerColumn(name string) Rule[int] {
	return Rule[int]{Name: name, Get: func(row contract.RawRow) (int, bool) {
		s, ok := row.Get(name)
		if !ok {
			return 0, false
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return 0, false
		}
		return int(math.Trunc(f)), true
	}}
}

// 日期格式按顺序尝试：YYYY-MM-DD、MM/DD/YYYY、DD/MM/YYYY、YYYY。
// 月/日允许不补零。
var dateLayouts = []string{"2006-1-2", "1/2/2006", "2/1/2006", "2006"}

func dateYearColumn(name string) Rule[int] {
	return Rule[int]{Name: name, Get: func(row contract.RawRow) (int, bool) {
		s, ok := row.Get(name)
		if !ok {
			return 0, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return validYear(t.Year())
			}
		}
		return 0, false
	}}
}

func validYear(y int) (int, bool) {
	if y == 0 {
		return 0, false
	}
	return y, true
}

func adminColumns(names ...string) []Rule[string] {
	out := make([]Rule[string], 0, len(names))
	for _, n := range names {
		out = append(out, column(n))
	}
	return out
}

// 逻辑字段回退链。
var (
	CountryChain = Chain[string]{Field: "country_code", Rules: []Rule[string]{column("country_code")}}

	CropChain = Chain[string]{
		Field:      "crop",
		Rules:      []Rule[string]{column("product"), column("cpcv2_description")},
		Default:    "Unknown Crop",
		HasDefault: true,
	}

	YearChain = Chain[int]{
		Field: "year",
		Rules: []Rule[int]{
			integerColumn("season_year"),
			dateYearColumn("start_date"),
			dateYearColumn("period_date"),
			dateYearColumn("harvest_end_date"),
		},
	}

	SeasonChain = Chain[string]{
		Field:      "season",
		Rules:      []Rule[string]{column("season_name"), column("season_type")},
		Default:    "Annual",
		HasDefault: true,
	}

	// 最细粒度优先：admin_4 → admin_0。
	RegionChain = Chain[string]{
		Field:      "region",
		Rules:      append(adminColumns("admin_4", "admin_3", "admin_2", "admin_1", "admin_0"), column("geographic_unit_name")),
		Default:    "National",
		HasDefault: true,
	}

	SourceChain = Chain[string]{
		Field:      "source",
		Rules:      []Rule[string]{column("source_organization"), column("source_document")},
		Default:    "Unknown",
		HasDefault: true,
	}

	IndicatorChain      = Chain[string]{Field: "indicator", Rules: []Rule[string]{column("indicator")}}
	IndicatorGroupChain = Chain[string]{Field: "indicator_group", Rules: []Rule[string]{column("indicator_group")}}
)

// Fields: 单行解析后的逻辑字段。
type Fields struct {
	Country string
	Crop    string

	Year    int
	HasYear bool

	Season string
	Region string
	Source string

	Indicator         string
	HasIndicator      bool
	IndicatorGroup    string
	HasIndicatorGroup bool
}

// Extract 解析整行；缺少 country_code 时 ok=false（该行整体跳过）。
func Extract(row contract.RawRow) (Fields, bool) {
	country, ok := CountryChain.Resolve(row)
	if !ok {
		return Fields{}, false
	}
	f := Fields{Country: country}
	f.Crop, _ = CropChain.Resolve(row)
	f.Year, f.HasYear = YearChain.Resolve(row)
	if f.Year == 0 {
		f.HasYear = false
	}
	f.Season, _ = SeasonChain.Resolve(row)
	f.Region, _ = RegionChain.Resolve(row)
	f.Source, _ = SourceChain.Resolve(row)
	f.Indicator, f.HasIndicator = IndicatorChain.Resolve(row)
	f.IndicatorGroup, f.HasIndicatorGroup = IndicatorGroupChain.Resolve(row)
	return f, true
}
