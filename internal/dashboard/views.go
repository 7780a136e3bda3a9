package dashboard

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"cropinv/internal/inventory"
)

// Overview: 全量数据概况。
type Overview struct {
	Records          int     `json:"records"`
	Countries        int     `json:"countries"`
	Crops            int     `json:"crops"`
	YearMin          int     `json:"year_min"`
	YearMax          int     `json:"year_max"`
	PctAreaPlanted   float64 `json:"pct_area_planted"`
	PctAreaHarvested float64 `json:"pct_area_harvested"`
	PctQuantity      float64 `json:"pct_quantity"`
	PctProduction    float64 `json:"pct_production"`
}

// Overview 对全部记录计算概况（不受筛选影响）。
func (d *Dataset) Overview() Overview {
	lo, hi := YearBounds(d.Records)
	bars := indicatorPercents(d.Records)
	return Overview{
		Records:          len(d.Records),
		Countries:        len(distinct(d.Records, countryOf)),
		Crops:            len(distinct(d.Records, cropOf)),
		YearMin:          lo,
		YearMax:          hi,
		PctAreaPlanted:   bars[0],
		PctAreaHarvested: bars[1],
		PctQuantity:      bars[2],
		PctProduction:    bars[3],
	}
}

// Option: 下拉选项。
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Options: 筛选控件的可选值。
type Options struct {
	Countries  []Option `json:"countries"`
	Crops      []string `json:"crops"`
	YearMin    int      `json:"year_min"`
	YearMax    int      `json:"year_max"`
	Indicators []Option `json:"indicators"`
}

// Options 返回按显示名排序的国家、排序后的作物与年份边界。
func (d *Dataset) Options() Options {
	names := make(map[string]string)
	for _, r := range d.Records {
		if _, ok := names[r.CountryCode]; !ok {
			names[r.CountryCode] = r.CountryName
		}
	}
	countries := make([]Option, 0, len(names))
	for code, name := range names {
		countries = append(countries, Option{Label: name, Value: code})
	}
	slices.SortFunc(countries, func(a, b Option) int {
		if c := cmp.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	lo, hi := YearBounds(d.Records)
	return Options{
		Countries: countries,
		Crops:     distinct(d.Records, cropOf),
		YearMin:   lo,
		YearMax:   hi,
		Indicators: []Option{
			{Label: "Area Planted", Value: RequireAreaPlanted},
			{Label: "Area Harvested", Value: RequireAreaHarvested},
			{Label: "Quantity Produced", Value: RequireQuantity},
			{Label: "Production", Value: RequireProduction},
		},
	}
}

// MapPoint: 地图上一个国家的作物覆盖数。
type MapPoint struct {
	MapCode     string `json:"map_code"`
	CountryName string `json:"country_name"`
	Crops       int    `json:"crops"`
}

// MapView 按 (map_code, country_name) 统计去重作物数；无地图代码的记录跳过。
func MapView(recs []Record) []MapPoint {
	type key struct{ code, name string }
	crops := map[key]map[string]struct{}{}
	for _, r := range recs {
		if r.MapCode == "" {
			continue
		}
		k := key{r.MapCode, r.CountryName}
		if crops[k] == nil {
			crops[k] = map[string]struct{}{}
		}
		crops[k][r.Crop] = struct{}{}
	}
	out := make([]MapPoint, 0, len(crops))
	for k, set := range crops {
		out = append(out, MapPoint{MapCode: k.code, CountryName: k.name, Crops: len(set)})
	}
	slices.SortFunc(out, func(a, b MapPoint) int {
		if c := cmp.Compare(a.MapCode, b.MapCode); c != 0 {
			return c
		}
		return cmp.Compare(a.CountryName, b.CountryName)
	})
	return out
}

// 热力图模式。
const (
	HeatmapCountryYear = "country_year"
	HeatmapCropYear    = "crop_year"
	HeatmapCountryCrop = "country_crop"
	HeatmapEmpty       = "empty"
)

// heatmapTop: 国家×作物模式下每个维度的上限。
const heatmapTop = 20

// Heatmap: 行×列矩阵。年份模式下值为 0/1；国家×作物模式下为最大 year_count。
type Heatmap struct {
	Mode   string   `json:"mode"`
	Title  string   `json:"title"`
	XLabel string   `json:"x_label,omitempty"`
	YLabel string   `json:"y_label,omitempty"`
	Rows   []string `json:"rows"`
	Cols   []string `json:"cols"`
	Values [][]int  `json:"values"`
}

// HeatmapView 按筛选条件选择模式：
// 单一作物且多个国家 → 国家×年份；单一国家且多个作物 → 作物×年份；
// 其余 → 国家×作物（任一维度超过 20 时只取前 20）。
func HeatmapView(recs []Record, f Filter) Heatmap {
	if len(recs) == 0 {
		return Heatmap{Mode: HeatmapEmpty, Title: "No data available for heatmap with selected filters"}
	}
	switch {
	case len(f.Crops) == 1 && len(distinct(recs, countryOf)) > 1:
		return yearHeatmap(recs, HeatmapCountryYear,
			fmt.Sprintf("Data Availability: %s by Country and Year", f.Crops[0]),
			"Country", func(r Record) string { return r.CountryName })
	case len(f.Countries) == 1 && len(distinct(recs, cropOf)) > 1:
		return yearHeatmap(recs, HeatmapCropYear,
			fmt.Sprintf("Data Availability: %s by Crop and Year", recs[0].CountryName),
			"Crop", cropOf)
	default:
		return countryCropHeatmap(recs)
	}
}

func yearHeatmap(recs []Record, mode, title, ylabel string, row func(Record) string) Heatmap {
	present := map[string]inventory.Set[int]{}
	years := inventory.Set[int]{}
	for _, r := range recs {
		for _, y := range r.Years {
			if present[row(r)] == nil {
				present[row(r)] = inventory.Set[int]{}
			}
			present[row(r)].Add(y)
			years.Add(y)
		}
	}
	if len(years) == 0 {
		return Heatmap{Mode: HeatmapEmpty, Title: "Insufficient data for heatmap"}
	}
	h := Heatmap{Mode: mode, Title: title, XLabel: "Year", YLabel: ylabel}
	cols := years.Sorted()
	for _, y := range cols {
		h.Cols = append(h.Cols, fmt.Sprint(y))
	}
	for name := range present {
		h.Rows = append(h.Rows, name)
	}
	slices.Sort(h.Rows)
	for _, name := range h.Rows {
		line := make([]int, len(cols))
		for i, y := range cols {
			if present[name].Has(y) {
				line[i] = 1
			}
		}
		h.Values = append(h.Values, line)
	}
	return h
}

func countryCropHeatmap(recs []Record) Heatmap {
	title := "Data Coverage: Countries × Crops"
	countries, crops := distinct(recs, countryOf), distinct(recs, cropOf)
	if len(countries) > heatmapTop || len(crops) > heatmapTop {
		keepCountries := topBy(recs, countryOf, cropOf)
		keepCrops := topBy(recs, cropOf, countryOf)
		kept := make([]Record, 0, len(recs))
		for _, r := range recs {
			if keepCountries.Has(r.CountryCode) && keepCrops.Has(r.Crop) {
				kept = append(kept, r)
			}
		}
		recs = kept
		title = fmt.Sprintf("Data Coverage: Top %d Countries × Top %d Crops", heatmapTop, heatmapTop)
	}
	if len(recs) == 0 {
		return Heatmap{Mode: HeatmapEmpty, Title: "Insufficient data for heatmap"}
	}
	h := Heatmap{Mode: HeatmapCountryCrop, Title: title, XLabel: "Crop", YLabel: "Country"}
	h.Rows = distinct(recs, func(r Record) string { return r.CountryName })
	h.Cols = distinct(recs, cropOf)
	rowIdx, colIdx := indexOf(h.Rows), indexOf(h.Cols)
	h.Values = make([][]int, len(h.Rows))
	for i := range h.Values {
		h.Values[i] = make([]int, len(h.Cols))
	}
	for _, r := range recs {
		cell := &h.Values[rowIdx[r.CountryName]][colIdx[r.Crop]]
		*cell = max(*cell, r.YearCount)
	}
	return h
}

// topBy 取 group 维度中 other 去重数最多的前 heatmapTop 个；计数相同按名称升序。
func topBy(recs []Record, group, other func(Record) string) inventory.Set[string] {
	counts := map[string]inventory.Set[string]{}
	for _, r := range recs {
		g := group(r)
		if counts[g] == nil {
			counts[g] = inventory.Set[string]{}
		}
		counts[g].Add(other(r))
	}
	names := make([]string, 0, len(counts))
	for g := range counts {
		names = append(names, g)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(len(counts[b]), len(counts[a])); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(names) > heatmapTop {
		names = names[:heatmapTop]
	}
	return inventory.SetOf(names...)
}

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// Bar: 一个指标的可用比例（百分比，保留一位小数）。
type Bar struct {
	Indicator string  `json:"indicator"`
	Percent   float64 `json:"percent"`
}

// IndicatorChart: 指标可用性柱状图数据；无记录时各项为 0。
type IndicatorChart struct {
	Title string `json:"title"`
	Bars  []Bar  `json:"bars"`
}

var indicatorLabels = [4]string{"Area Planted", "Area Harvested", "Quantity Produced", "Production"}

// IndicatorBars 计算四个指标在记录中的占比。
func IndicatorBars(recs []Record) IndicatorChart {
	pct := indicatorPercents(recs)
	c := IndicatorChart{Title: "Indicator Availability in Selected Data (%)"}
	if len(recs) == 0 {
		c.Title = "No data available for indicator graph with selected filters"
	}
	for i, label := range indicatorLabels {
		c.Bars = append(c.Bars, Bar{Indicator: label, Percent: pct[i]})
	}
	return c
}

func indicatorPercents(recs []Record) [4]float64 {
	var n [4]int
	for _, r := range recs {
		for i, ok := range [4]bool{r.HasAreaPlanted, r.HasAreaHarvested, r.HasQuantity, r.HasProduction} {
			if ok {
				n[i]++
			}
		}
	}
	var out [4]float64
	if len(recs) == 0 {
		return out
	}
	for i := range n {
		out[i] = math.Round(float64(n[i])*1000/float64(len(recs))) / 10
	}
	return out
}

// Stats: 筛选结果统计。无年份时 Earliest/Latest/Span 为空。
type Stats struct {
	Records   int  `json:"records"`
	Countries int  `json:"countries"`
	Crops     int  `json:"crops"`
	Earliest  *int `json:"earliest,omitempty"`
	Latest    *int `json:"latest,omitempty"`
	Span      *int `json:"span,omitempty"`
}

// StatsView 统计记录数、国家数、作物数与年份跨度（latest - earliest + 1）。
func StatsView(recs []Record) Stats {
	s := Stats{
		Records:   len(recs),
		Countries: len(distinct(recs, countryOf)),
		Crops:     len(distinct(recs, cropOf)),
	}
	for _, r := range recs {
		if r.YearMin != nil && (s.Earliest == nil || *r.YearMin < *s.Earliest) {
			v := *r.YearMin
			s.Earliest = &v
		}
		if r.YearMax != nil && (s.Latest == nil || *r.YearMax > *s.Latest) {
			v := *r.YearMax
			s.Latest = &v
		}
	}
	if s.Earliest != nil && s.Latest != nil {
		span := *s.Latest - *s.Earliest + 1
		s.Span = &span
	}
	return s
}

// TableRow: 明细表的一行。
type TableRow struct {
	CountryName         string `json:"country_name"`
	Crop                string `json:"crop"`
	YearRange           string `json:"year_range"`
	Seasonality         string `json:"seasonality"`
	IndicatorsAvailable string `json:"indicators_available"`
}

// Table 按记录顺序输出明细行。
func Table(recs []Record) []TableRow {
	rows := make([]TableRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, TableRow{
			CountryName:         r.CountryName,
			Crop:                r.Crop,
			YearRange:           r.YearRange,
			Seasonality:         r.Seasonality,
			IndicatorsAvailable: r.IndicatorsAvailable,
		})
	}
	return rows
}

// View: 一次筛选对应的全部视图。
type View struct {
	Filter     Filter         `json:"filter"`
	Map        []MapPoint     `json:"map"`
	Heatmap    Heatmap        `json:"heatmap"`
	Indicators IndicatorChart `json:"indicators"`
	Stats      Stats          `json:"stats"`
	Table      []TableRow     `json:"table"`
}

// View 对筛选结果计算全部视图。
func (d *Dataset) View(f Filter) View {
	recs := f.Apply(d.Records)
	return View{
		Filter:     f,
		Map:        MapView(recs),
		Heatmap:    HeatmapView(recs, f),
		Indicators: IndicatorBars(recs),
		Stats:      StatsView(recs),
		Table:      Table(recs),
	}
}
