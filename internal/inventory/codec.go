package inventory

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cropinv/pkg/contract"
)

// 持久化格式：
// - 清单 JSON：country_code → crop → 聚合（集合为升序数组，空集合为 []）；
// - 汇总 CSV：每个 (country, crop) 一行，列见 SummaryColumns；
// - 国家汇总 CSV：每个 country_code 一行，列见 CountrySummaryColumns。

// SummaryColumns: 汇总表列（顺序即输出顺序）。
var SummaryColumns = []string{
	"country_code", "crop", "year_count", "year_min", "year_max", "year_range", "years",
	"seasonality", "region_count", "has_area_planted", "has_area_harvested", "has_quantity",
	"has_production", "indicators_available", "completeness", "data_sources", "indicator_count",
}

// CountrySummaryColumns: 国家汇总表列；crop 为去重作物数而非标签。
var CountrySummaryColumns = []string{
	"country_code", "crop", "year_min", "year_max", "region_count", "completeness", "country_name",
}

// aggregateDoc 键顺序即 JSON 输出顺序。
type aggregateDoc struct {
	Years            []int    `json:"years"`
	Seasonality      []string `json:"seasonality"`
	AreaPlanted      bool     `json:"area_planted"`
	AreaHarvested    bool     `json:"area_harvested"`
	QuantityProduced bool     `json:"quantity_produced"`
	Production       bool     `json:"production"`
	Regions          []string `json:"regions"`
	DataSources      []string `json:"data_sources"`
	Indicators       []string `json:"indicators"`
}

// EncodeInventory 写出嵌套 JSON 文档（2 空格缩进）。
func EncodeInventory(w io.Writer, inv *Inventory) error {
	doc := make(map[string]map[string]aggregateDoc)
	for k, a := range inv.entries {
		crops, ok := doc[k.Country]
		if !ok {
			crops = make(map[string]aggregateDoc)
			doc[k.Country] = crops
		}
		crops[k.Crop] = aggregateDoc{
			Years:            a.Years.Sorted(),
			Seasonality:      a.Seasonality.Sorted(),
			AreaPlanted:      a.Flags.AreaPlanted,
			AreaHarvested:    a.Flags.AreaHarvested,
			QuantityProduced: a.Flags.QuantityProduced,
			Production:       a.Flags.Production,
			Regions:          a.Regions.Sorted(),
			DataSources:      a.DataSources.Sorted(),
			Indicators:       a.Indicators.Sorted(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%w: inventory json: %w", contract.ErrSerialization, err)
	}
	return nil
}

// DecodeInventory 读回清单 JSON；集合内容与写出前相等。
func DecodeInventory(r io.Reader) (*Inventory, error) {
	var doc map[string]map[string]aggregateDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: inventory json: %w", contract.ErrFileInvalid, err)
	}
	inv := New()
	for country, crops := range doc {
		for crop, d := range crops {
			a := inv.Entry(Key{Country: country, Crop: crop})
			for _, y := range d.Years {
				a.Years.Add(y)
			}
			a.Seasonality.Union(SetOf(d.Seasonality...))
			a.Regions.Union(SetOf(d.Regions...))
			a.DataSources.Union(SetOf(d.DataSources...))
			a.Indicators.Union(SetOf(d.Indicators...))
			a.Flags = Indicators{
				AreaPlanted:      d.AreaPlanted,
				AreaHarvested:    d.AreaHarvested,
				QuantityProduced: d.QuantityProduced,
				Production:       d.Production,
			}
		}
	}
	return inv, nil
}

// EncodeSummary 写出汇总 CSV。
func EncodeSummary(w io.Writer, recs []SummaryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryColumns); err != nil {
		return fmt.Errorf("%w: summary csv header: %w", contract.ErrSerialization, err)
	}
	for i, r := range recs {
		if err := cw.Write([]string{
			r.CountryCode,
			r.Crop,
			strconv.Itoa(r.YearCount),
			formatOptInt(r.YearMin),
			formatOptInt(r.YearMax),
			r.YearRange,
			FormatYears(r.Years),
			r.Seasonality,
			strconv.Itoa(r.RegionCount),
			formatBool(r.HasAreaPlanted),
			formatBool(r.HasAreaHarvested),
			formatBool(r.HasQuantity),
			formatBool(r.HasProduction),
			r.IndicatorsAvailable,
			FormatFloat(r.Completeness),
			r.DataSources,
			strconv.Itoa(r.IndicatorCount),
		}); err != nil {
			return fmt.Errorf("%w: summary csv record %d: %w", contract.ErrSerialization, i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: summary csv: %w", contract.ErrSerialization, err)
	}
	return nil
}

// DecodeSummary 读回汇总 CSV；缺少 country_code/crop 列时视为文件非法。
func DecodeSummary(r io.Reader) ([]SummaryRecord, error) {
	tbl, err := readTable(r, "country_code", "crop")
	if err != nil {
		return nil, fmt.Errorf("summary csv: %w", err)
	}
	out := make([]SummaryRecord, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		p := fieldParser{tbl: tbl, row: row}
		rec := SummaryRecord{
			CountryCode:         p.str("country_code"),
			Crop:                p.str("crop"),
			YearCount:           p.intVal("year_count"),
			YearMin:             p.optInt("year_min"),
			YearMax:             p.optInt("year_max"),
			YearRange:           p.str("year_range"),
			Years:               p.years("years"),
			Seasonality:         p.str("seasonality"),
			RegionCount:         p.intVal("region_count"),
			HasAreaPlanted:      p.boolVal("has_area_planted"),
			HasAreaHarvested:    p.boolVal("has_area_harvested"),
			HasQuantity:         p.boolVal("has_quantity"),
			HasProduction:       p.boolVal("has_production"),
			IndicatorsAvailable: p.str("indicators_available"),
			Completeness:        p.floatVal("completeness"),
			DataSources:         p.str("data_sources"),
			IndicatorCount:      p.intVal("indicator_count"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%w: summary csv line %d: %w", contract.ErrFileInvalid, i+2, p.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeCountrySummary 写出国家汇总 CSV。
func EncodeCountrySummary(w io.Writer, recs []CountrySummaryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CountrySummaryColumns); err != nil {
		return fmt.Errorf("%w: country summary csv header: %w", contract.ErrSerialization, err)
	}
	for i, r := range recs {
		if err := cw.Write([]string{
			r.CountryCode,
			strconv.Itoa(r.Crops),
			formatOptInt(r.YearMin),
			formatOptInt(r.YearMax),
			strconv.Itoa(r.RegionCount),
			FormatFloat(r.Completeness),
			r.CountryName,
		}); err != nil {
			return fmt.Errorf("%w: country summary csv record %d: %w", contract.ErrSerialization, i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: country summary csv: %w", contract.ErrSerialization, err)
	}
	return nil
}

// DecodeCountrySummary 读回国家汇总 CSV。
func DecodeCountrySummary(r io.Reader) ([]CountrySummaryRecord, error) {
	tbl, err := readTable(r, "country_code")
	if err != nil {
		return nil, fmt.Errorf("country summary csv: %w", err)
	}
	out := make([]CountrySummaryRecord, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		p := fieldParser{tbl: tbl, row: row}
		rec := CountrySummaryRecord{
			CountryCode:  p.str("country_code"),
			Crops:        p.intVal("crop"),
			YearMin:      p.optInt("year_min"),
			YearMax:      p.optInt("year_max"),
			RegionCount:  p.intVal("region_count"),
			Completeness: p.floatVal("completeness"),
			CountryName:  p.str("country_name"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%w: country summary csv line %d: %w", contract.ErrFileInvalid, i+2, p.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FormatYears 将年份列表写成 "[2019, 2020]"；空列表为 "[]"。
func FormatYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseYears 去掉方括号后按逗号拆分；空片段忽略。
func ParseYears(s string) ([]int, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	out := []int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := parseLooseInt(part)
		if err != nil {
			return nil, fmt.Errorf("years %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatFloat 输出最短十进制表示，整数值保留 ".0"（如 25.0）。
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// parseLooseInt 接受 "2019" 与 "2019.0"。
func parseLooseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

type table struct {
	index map[string]int
	rows  [][]string
}

// readTable 读取带表头的 CSV；required 列缺失时返回 ErrFileInvalid。
func readTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrFileInvalid, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", contract.ErrFileInvalid)
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", contract.ErrFileInvalid, col)
		}
	}
	return &table{index: idx, rows: records[1:]}, nil
}

// fieldParser 记录首个解析错误，后续取值照常返回零值。
type fieldParser struct {
	tbl *table
	row []string
	err error
}

func (p *fieldParser) str(col string) string {
	i, ok := p.tbl.index[col]
	if !ok || i >= len(p.row) {
		return ""
	}
	return p.row[i]
}

func (p *fieldParser) fail(col string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
}

func (p *fieldParser) intVal(col string) int {
	v := p.optInt(col)
	if v == nil {
		return 0
	}
	return *v
}

func (p *fieldParser) optInt(col string) *int {
	s := strings.TrimSpace(p.str(col))
	if s == "" {
		return nil
	}
	n, err := parseLooseInt(s)
	if err != nil {
		p.fail(col, err)
		return nil
	}
	return &n
}

func (p *fieldParser) floatVal(col string) float64 {
	s := strings.TrimSpace(p.str(col))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(col, err)
		return 0
	}
	return f
}

func (p *fieldParser) boolVal(col string) bool {
	switch strings.ToLower(strings.TrimSpace(p.str(col))) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func (p *fieldParser) years(col string) []int {
	ys, err := ParseYears(p.str(col))
	if err != nil {
		p.fail(col, err)
		return []int{}
	}
	return ys
}
