package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"cropinv/pkg/contract"
)

// UT-COD-01: 清单 JSON 往返后相等
func TestInventoryRoundTrip(t *testing.T) {
	inv := buildInventory(sampleRows())
	inv.Entry(Key{"TZ", "Rice"}) // 空聚合
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, inv); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeInventory(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(inv) {
		t.Fatalf("往返不一致")
	}
}

// UT-COD-02: JSON 结构：空集合为 []，键顺序固定
func TestInventoryJSONShape(t *testing.T) {
	inv := New()
	inv.Entry(Key{"TZ", "Rice"})
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, inv); err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := buf.String()
	for _, want := range []string{`"years": []`, `"regions": []`, `"area_planted": false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("输出缺少 %s:\n%s", want, s)
		}
	}
	if strings.Index(s, `"years"`) > strings.Index(s, `"indicators"`) {
		t.Fatalf("键顺序错误:\n%s", s)
	}
	var generic map[string]map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &generic); err != nil {
		t.Fatalf("非法 JSON: %v", err)
	}
}

func TestDecodeInventoryInvalid(t *testing.T) {
	_, err := DecodeInventory(strings.NewReader("{not json"))
	if !errors.Is(err, contract.ErrFileInvalid) {
		t.Fatalf("err = %v", err)
	}
}

// UT-COD-03: 汇总 CSV 往返
func TestSummaryRoundTrip(t *testing.T) {
	recs := ProjectAll(buildInventory(sampleRows()))
	var buf bytes.Buffer
	if err := EncodeSummary(&buf, recs); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSummary(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Fatalf("往返不一致:\n got %+v\nwant %+v", got, recs)
	}
}

// UT-COD-04: 汇总 CSV 的文本格式
func TestSummaryFormat(t *testing.T) {
	inv := buildInventory([]contract.RawRow{
		{"country_code": "KE", "product": "Maize", "season_year": "2019", "indicator": "Area Harvested"},
		{"country_code": "KE", "product": "Maize", "season_year": "2020", "indicator": "Production"},
	})
	var buf bytes.Buffer
	if err := EncodeSummary(&buf, ProjectAll(inv)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != strings.Join(SummaryColumns, ",") {
		t.Fatalf("lines = %q", lines)
	}
	want := `KE,Maize,2,2019,2020,2019-2020,"[2019, 2020]",Annual,1,False,True,False,True,"Area Harvested, Production",50.0,Unknown,2`
	if lines[1] != want {
		t.Fatalf("row =\n%s\nwant\n%s", lines[1], want)
	}
}

// UT-COD-05: 国家汇总往返（含空年份）
func TestCountrySummaryRoundTrip(t *testing.T) {
	recs := []CountrySummaryRecord{
		{CountryCode: "KE", Crops: 2, YearMin: intp(2015), YearMax: intp(2020), RegionCount: 5, Completeness: 62.5, CountryName: "Kenya"},
		{CountryCode: "ET", Crops: 1, RegionCount: 1, Completeness: 0, CountryName: "Country ET"},
	}
	var buf bytes.Buffer
	if err := EncodeCountrySummary(&buf, recs); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(buf.String(), "ET,1,,,1,0.0,Country ET") {
		t.Fatalf("csv = %s", buf.String())
	}
	got, err := DecodeCountrySummary(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Fatalf("往返不一致: %+v", got)
	}
}

func TestDecodeSummaryInvalid(t *testing.T) {
	cases := map[string]string{
		"空文件":   "",
		"缺少列":   "country_code,year_count\nKE,1\n",
		"整数非法": "country_code,crop,year_count\nKE,Maize,abc\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeSummary(strings.NewReader(in)); !errors.Is(err, contract.ErrFileInvalid) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestDecodeSummaryBOM(t *testing.T) {
	in := "\ufeffcountry_code,crop,year_count,years\nKE,Maize,2.0,\"[2019, 2020]\"\n"
	got, err := DecodeSummary(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].YearCount != 2 || !reflect.DeepEqual(got[0].Years, []int{2019, 2020}) {
		t.Fatalf("got %+v", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatYears(nil); got != "[]" {
		t.Fatalf("FormatYears(nil) = %q", got)
	}
	if got := FormatYears([]int{2019, 2020}); got != "[2019, 2020]" {
		t.Fatalf("FormatYears = %q", got)
	}
	for in, want := range map[float64]string{25: "25.0", 0: "0.0", 62.5: "62.5", 100: "100.0"} {
		if got := FormatFloat(in); got != want {
			t.Fatalf("FormatFloat(%v) = %q want %q", in, got, want)
		}
	}
	ys, err := ParseYears(" [2019,2020.0, ] ")
	if err != nil || !reflect.DeepEqual(ys, []int{2019, 2020}) {
		t.Fatalf("ParseYears = %v, %v", ys, err)
	}
	if _, err := ParseYears("[abc]"); err == nil {
		t.Fatalf("ParseYears 应失败")
	}
}

type failingSink struct{ writes int }

func (f *failingSink) Write([]byte) (int, error) {
	f.writes++
	return 0, errors.New("disk full")
}

// UT-COD-06: 写出失败立即返回 ErrSerialization，不继续写后续记录
func TestEncodeCSVWriteFailure(t *testing.T) {
	summary := make([]SummaryRecord, 500)
	countries := make([]CountrySummaryRecord, 500)
	for i := range summary {
		summary[i] = SummaryRecord{CountryCode: "KE", Crop: strings.Repeat("m", 20), YearRange: "N/A", Seasonality: "N/A"}
		countries[i] = CountrySummaryRecord{CountryCode: "KE", CountryName: strings.Repeat("k", 20)}
	}
	for name, encode := range map[string]func(*failingSink) error{
		"summary":         func(w *failingSink) error { return EncodeSummary(w, summary) },
		"country summary": func(w *failingSink) error { return EncodeCountrySummary(w, countries) },
		"empty summary":   func(w *failingSink) error { return EncodeSummary(w, nil) },
	} {
		sink := &failingSink{}
		err := encode(sink)
		if !errors.Is(err, contract.ErrSerialization) {
			t.Fatalf("%s: err = %v", name, err)
		}
		if sink.writes != 1 {
			t.Fatalf("%s: 首次失败后不应继续写, writes=%d", name, sink.writes)
		}
	}
}
