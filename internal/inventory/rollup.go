package inventory

import (
	"fmt"
	"slices"

	"cropinv/pkg/contract"
)

// CountrySummaryRecord: 按国家汇总的记录。Crops 为去重作物数。
type CountrySummaryRecord struct {
	CountryCode  string
	Crops        int
	YearMin      *int
	YearMax      *int
	RegionCount  int
	Completeness float64
	CountryName  string
}

// FallbackCountryName: 映射缺失时的显示名。
func FallbackCountryName(code string) string { return fmt.Sprintf("Country %s", code) }

type countryAcc struct {
	crops        Set[string]
	yearMin      *int
	yearMax      *int
	regions      int
	completeness float64
	n            int
}

// Rollup 按 country_code 分组；输出按 country_code 升序且键唯一。
// year_min/year_max 忽略空值；全部为空时保持空。namer 为 nil 时使用 FallbackCountryName。
func Rollup(records []SummaryRecord, namer contract.CountryNamer) []CountrySummaryRecord {
	groups := make(map[string]*countryAcc)
	for _, r := range records {
		g, ok := groups[r.CountryCode]
		if !ok {
			g = &countryAcc{crops: Set[string]{}}
			groups[r.CountryCode] = g
		}
		g.crops.Add(r.Crop)
		if r.YearMin != nil && (g.yearMin == nil || *r.YearMin < *g.yearMin) {
			v := *r.YearMin
			g.yearMin = &v
		}
		if r.YearMax != nil && (g.yearMax == nil || *r.YearMax > *g.yearMax) {
			v := *r.YearMax
			g.yearMax = &v
		}
		g.regions += r.RegionCount
		g.completeness += r.Completeness
		g.n++
	}

	codes := make([]string, 0, len(groups))
	for c := range groups {
		codes = append(codes, c)
	}
	slices.Sort(codes)

	out := make([]CountrySummaryRecord, 0, len(codes))
	for _, c := range codes {
		g := groups[c]
		name := FallbackCountryName(c)
		if namer != nil {
			name = namer.Name(c)
		}
		out = append(out, CountrySummaryRecord{
			CountryCode:  c,
			Crops:        len(g.crops),
			YearMin:      g.yearMin,
			YearMax:      g.yearMax,
			RegionCount:  g.regions,
			Completeness: g.completeness / float64(g.n),
			CountryName:  name,
		})
	}
	return out
}
