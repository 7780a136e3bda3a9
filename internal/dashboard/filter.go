package dashboard

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"cropinv/pkg/contract"
)

// 可要求的指标名。
const (
	RequireAreaPlanted   = "area_planted"
	RequireAreaHarvested = "area_harvested"
	RequireQuantity      = "quantity"
	RequireProduction    = "production"
)

var requireNames = []string{RequireAreaPlanted, RequireAreaHarvested, RequireQuantity, RequireProduction}

// Filter: 仪表盘筛选条件。空列表表示不限制；年份边界为 nil 表示不限制。
type Filter struct {
	Countries []string `json:"countries,omitempty"`
	Crops     []string `json:"crops,omitempty"`
	YearFrom  *int     `json:"year_from,omitempty"`
	YearTo    *int     `json:"year_to,omitempty"`
	Require   []string `json:"require,omitempty"`
}

// ParseFilter 读取查询参数 country、crop、year_from、year_to、require。
// 列表参数可重复出现，也可用逗号分隔。
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Countries: listParam(q, "country"),
		Crops:     listParam(q, "crop"),
		Require:   listParam(q, "require"),
	}
	for _, name := range f.Require {
		if !slices.Contains(requireNames, name) {
			return Filter{}, eris.Wrapf(contract.ErrInvalidInput, "dashboard: unknown indicator %q", name)
		}
	}
	var err error
	if f.YearFrom, err = intParam(q, "year_from"); err != nil {
		return Filter{}, err
	}
	if f.YearTo, err = intParam(q, "year_to"); err != nil {
		return Filter{}, err
	}
	if f.YearFrom != nil && f.YearTo != nil && *f.YearFrom > *f.YearTo {
		return Filter{}, eris.Wrapf(contract.ErrInvalidInput, "dashboard: year_from %d > year_to %d", *f.YearFrom, *f.YearTo)
	}
	return f, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" && !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (*int, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, eris.Wrapf(contract.ErrInvalidInput, "dashboard: %s=%q", name, s)
	}
	return &n, nil
}

// Key 返回规范化的缓存键：列表排序后拼接，与参数顺序无关。
func (f Filter) Key() string {
	sorted := func(in []string) string {
		c := slices.Clone(in)
		slices.Sort(c)
		return strings.Join(c, ",")
	}
	opt := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	return fmt.Sprintf("c=%s|k=%s|y=%s..%s|r=%s",
		sorted(f.Countries), sorted(f.Crops), opt(f.YearFrom), opt(f.YearTo), sorted(f.Require))
}

// Apply 依次按国家、作物、年份、指标过滤，保持输入顺序。
// 年份过滤要求 year_min >= from 且 year_max <= to，无年份的记录被剔除；
// 若剩余记录全部没有年份，则跳过年份过滤。
func (f Filter) Apply(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if len(f.Countries) > 0 && !slices.Contains(f.Countries, r.CountryCode) {
			continue
		}
		if len(f.Crops) > 0 && !slices.Contains(f.Crops, r.Crop) {
			continue
		}
		out = append(out, r)
	}
	if (f.YearFrom != nil || f.YearTo != nil) && anyYears(out) {
		kept := out[:0]
		for _, r := range out {
			if r.YearMin == nil || r.YearMax == nil {
				continue
			}
			if f.YearFrom != nil && *r.YearMin < *f.YearFrom {
				continue
			}
			if f.YearTo != nil && *r.YearMax > *f.YearTo {
				continue
			}
			kept = append(kept, r)
		}
		out = kept
	}
	if len(f.Require) > 0 {
		kept := out[:0]
		for _, r := range out {
			if f.satisfies(r) {
				kept = append(kept, r)
			}
		}
		out = kept
	}
	return out
}

func (f Filter) satisfies(r Record) bool {
	for _, name := range f.Require {
		var ok bool
		switch name {
		case RequireAreaPlanted:
			ok = r.HasAreaPlanted
		case RequireAreaHarvested:
			ok = r.HasAreaHarvested
		case RequireQuantity:
			ok = r.HasQuantity
		case RequireProduction:
			ok = r.HasProduction
		}
		if !ok {
			return false
		}
	}
	return true
}

func anyYears(recs []Record) bool {
	for _, r := range recs {
		if r.YearMin != nil && r.YearMax != nil {
			return true
		}
	}
	return false
}
