package inventory

import (
	"fmt"
	"strings"
)

// SummaryRecord: 单个 (country, crop) 的只读扁平投影。
type SummaryRecord struct {
	CountryCode         string
	Crop                string
	YearCount           int
	YearMin             *int
	YearMax             *int
	YearRange           string
	Years               []int
	Seasonality         string
	RegionCount         int
	HasAreaPlanted      bool
	HasAreaHarvested    bool
	HasQuantity         bool
	HasProduction       bool
	IndicatorsAvailable string
	Completeness        float64
	DataSources         string
	IndicatorCount      int
}

// Flags 还原四个指标布尔值。
func (r SummaryRecord) Flags() Indicators {
	return Indicators{
		AreaPlanted:      r.HasAreaPlanted,
		AreaHarvested:    r.HasAreaHarvested,
		QuantityProduced: r.HasQuantity,
		Production:       r.HasProduction,
	}
}

// maxListedSources: 来源数不超过该值时逐个列出，否则只给计数。
const maxListedSources = 3

// Project 为纯函数：同一聚合总是得到同一记录。
func Project(k Key, a *Aggregate) SummaryRecord {
	years := a.Years.Sorted()
	rec := SummaryRecord{
		CountryCode:         k.Country,
		Crop:                k.Crop,
		YearCount:           len(years),
		YearRange:           "N/A",
		Years:               years,
		Seasonality:         "N/A",
		RegionCount:         len(a.Regions),
		HasAreaPlanted:      a.Flags.AreaPlanted,
		HasAreaHarvested:    a.Flags.AreaHarvested,
		HasQuantity:         a.Flags.QuantityProduced,
		HasProduction:       a.Flags.Production,
		IndicatorsAvailable: strings.Join(a.Flags.Labels(), ", "),
		Completeness:        Completeness(a.Flags),
		IndicatorCount:      len(a.Indicators),
	}
	if n := len(years); n > 0 {
		lo, hi := years[0], years[n-1]
		rec.YearMin, rec.YearMax = &lo, &hi
		rec.YearRange = fmt.Sprintf("%d-%d", lo, hi)
	}
	if len(a.Seasonality) > 0 {
		rec.Seasonality = strings.Join(a.Seasonality.Sorted(), ", ")
	}
	if sources := a.DataSources.Sorted(); len(sources) <= maxListedSources {
		rec.DataSources = strings.Join(sources, "; ")
	} else {
		rec.DataSources = fmt.Sprintf("%d sources", len(sources))
	}
	return rec
}

// Completeness 返回四个指标中为真者的百分比（0..100，步长 25）。
func Completeness(f Indicators) float64 {
	return float64(f.Count()) / 4.0 * 100
}

// ProjectAll 按 (country, crop) 升序投影全部条目。
func ProjectAll(inv *Inventory) []SummaryRecord {
	keys := inv.Keys()
	out := make([]SummaryRecord, 0, len(keys))
	for _, k := range keys {
		a, _ := inv.Lookup(k)
		out = append(out, Project(k, a))
	}
	return out
}
