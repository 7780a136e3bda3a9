package inventory

import (
	"slices"
	"testing"
)

// UT-SUM-01: 完整度 = 为真指标数 × 25
func TestCompleteness(t *testing.T) {
	cases := []struct {
		flags Indicators
		want  float64
	}{
		{Indicators{}, 0},
		{Indicators{Production: true}, 25},
		{Indicators{AreaPlanted: true, QuantityProduced: true}, 50},
		{Indicators{AreaPlanted: true, AreaHarvested: true, Production: true}, 75},
		{Indicators{true, true, true, true}, 100},
	}
	for _, c := range cases {
		if got := Completeness(c.flags); got != c.want {
			t.Fatalf("Completeness(%+v) = %v want %v", c.flags, got, c.want)
		}
	}
}

// UT-SUM-02: 空年份与空季节
func TestProjectEmpty(t *testing.T) {
	rec := Project(Key{"TZ", "Rice"}, NewAggregate())
	if rec.YearMin != nil || rec.YearMax != nil {
		t.Fatalf("空年份 min/max 应为 nil")
	}
	if rec.YearRange != "N/A" || rec.Seasonality != "N/A" {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.Years == nil || len(rec.Years) != 0 {
		t.Fatalf("years 应为空切片: %#v", rec.Years)
	}
	if rec.IndicatorsAvailable != "" || rec.DataSources != "" || rec.Completeness != 0 {
		t.Fatalf("rec = %+v", rec)
	}
}

// UT-SUM-03: 来源超过 3 个时只给计数
func TestProjectDataSources(t *testing.T) {
	a := NewAggregate()
	a.DataSources.Union(SetOf("FAO", "KNBS", "MoA"))
	if got := Project(Key{"KE", "Maize"}, a).DataSources; got != "FAO; KNBS; MoA" {
		t.Fatalf("sources = %q", got)
	}
	a.DataSources.Add("USDA")
	if got := Project(Key{"KE", "Maize"}, a).DataSources; got != "4 sources" {
		t.Fatalf("sources = %q", got)
	}
}

func TestProjectFields(t *testing.T) {
	a := NewAggregate()
	a.Years.Union(SetOf(2021, 2018, 2019))
	a.Seasonality.Union(SetOf("Short rains", "Long rains"))
	a.Regions.Union(SetOf("Rift", "Coast"))
	a.Indicators.Union(SetOf("Production", "Area Planted", "Yield"))
	a.Flags = Indicators{AreaPlanted: true, Production: true}
	rec := Project(Key{"KE", "Maize"}, a)
	if *rec.YearMin != 2018 || *rec.YearMax != 2021 || rec.YearCount != 3 || rec.YearRange != "2018-2021" {
		t.Fatalf("年份字段错误: %+v", rec)
	}
	if rec.Seasonality != "Long rains, Short rains" || rec.RegionCount != 2 || rec.IndicatorCount != 3 {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.Flags() != a.Flags {
		t.Fatalf("flags 往返不一致")
	}
}

func TestProjectAllSorted(t *testing.T) {
	recs := ProjectAll(buildInventory(sampleRows()))
	var got []string
	for _, r := range recs {
		got = append(got, r.CountryCode+"/"+r.Crop)
	}
	want := []string{"KE/Beans", "KE/Maize", "UG/Cassava", "UG/Sorghum"}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v", got)
	}
}
