package testdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "cropinv/internal/config"
	"cropinv/internal/dashboard"
	"cropinv/internal/diag"
	"cropinv/internal/inventory"
	"cropinv/internal/pipeline"
)

const header = "country_code,product,season_year,start_date,indicator,indicator_group,admin_1,source_organization\n"

const mapping = "ISO2_Code,ISO3_Code,Country_Name\nKE,KEN,Kenya\nUG,UGA,Uganda\n"

func write(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// workspace 在临时目录构造数据树、映射文件与 YAML 配置，返回配置路径。
func workspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "m49")
	write(t, filepath.Join(data, "KE", "LA_cropdata.csv"), header+
		"KE,Maize,2019,,Area Planted,,Rift,KNBS\n"+
		"KE,Maize,2020,,Production,,Coast,FEWS NET\n"+
		"KE,Beans,-,2018-05-01,Quantity Produced,,,KNBS\n")
	write(t, filepath.Join(data, "UG", "admin1", "LA_cropdata.csv"), header+
		"UG,Cassava,2017,,Area Harvested,,Gulu,UBOS\n"+
		"UG,Cassava,2018,,Area Harvested,,Gulu,UBOS\n")
	write(t, filepath.Join(data, "UG", "notes.csv"), header+"UG,Teff,2000,,Production,,,\n")
	write(t, filepath.Join(dir, "countries.csv"), mapping)

	out := filepath.Join(dir, "out")
	conf := strings.Join([]string{
		"data_dir: " + data,
		"output_dir: " + out,
		"country_mapping: " + filepath.Join(dir, "countries.csv"),
		"concurrency: 2",
		"logging:",
		"  level: error",
		"options:",
		"  table:",
		"    na_values: [\"-\"]",
		"countries:",
		"  enrich: false",
		"dashboard:",
		"  enabled: false",
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	write(t, path, conf)
	return path, out
}

// E2E-01: 配置 → 装配 → 扫描 → 写出 → 读回 → 仪表盘视图
func TestEndToEnd(t *testing.T) {
	path, out := workspace(t)
	cfg, src, err := cfgpkg.Resolve(path, nil)
	if err != nil || src.Path != path {
		t.Fatalf("resolve: %v %+v", err, src)
	}
	cfg = cfgpkg.Merge(cfgpkg.Defaults(), cfg)
	if err := cfgpkg.Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	logger := diag.NewNopLogger()
	comp, set, reg, err := cfgpkg.Assemble(cfg, logger)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	res, err := pipeline.Run(context.Background(), comp, set, logger)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stats.FilesProcessed != 2 || res.Stats.Entries != 3 {
		t.Fatalf("统计错误: %+v", res.Stats)
	}

	// JSON：键为 ISO2，作物按名称排序
	raw, err := os.ReadFile(filepath.Join(out, pipeline.InventoryFile))
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("inventory 非法 JSON: %v", err)
	}
	if _, ok := doc["KE"]["Beans"]; !ok {
		t.Fatalf("缺少 KE/Beans: %s", raw)
	}
	if _, ok := doc["UG"]["Teff"]; ok {
		t.Fatalf("非候选文件不应被读取")
	}

	// 国家汇总使用映射文件中的名称
	f, err := os.Open(filepath.Join(out, pipeline.CountrySummaryFile))
	if err != nil {
		t.Fatalf("open country summary: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) != 3 {
		t.Fatalf("country summary: %v %v", rows, err)
	}
	if !strings.Contains(strings.Join(rows[1], ","), "Kenya") {
		t.Fatalf("国家名称缺失: %v", rows[1])
	}

	ds, err := dashboard.LoadDataset(out, reg)
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	if !ds.Inventory.Equal(res.Inventory) {
		t.Fatalf("读回的清单与运行结果不一致")
	}
	ov := ds.Overview()
	if ov.Records != 3 || ov.Countries != 2 || ov.YearMin != 2017 || ov.YearMax != 2020 {
		t.Fatalf("overview = %+v", ov)
	}
	v := ds.View(dashboard.Filter{Countries: []string{"UG"}})
	if v.Stats.Records != 1 || len(v.Map) != 1 || v.Map[0].MapCode != "UGA" {
		t.Fatalf("view = %+v", v)
	}

	agg, ok := res.Inventory.Lookup(inventory.Key{Country: "KE", Crop: "Maize"})
	if !ok || !agg.DataSources.Has("FEWS NET") {
		t.Fatalf("KE/Maize 数据源缺失")
	}
}

// E2E-02: 跳过处理时读回结果与原始运行一致
func TestSkipProcessingRoundTrip(t *testing.T) {
	path, out := workspace(t)
	cfg, _, err := cfgpkg.Resolve(path, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cfg = cfgpkg.Merge(cfgpkg.Defaults(), cfg)
	comp, set, reg, err := cfgpkg.Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	res, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !pipeline.Exists(out) {
		t.Fatalf("输出应存在")
	}
	loaded, err := pipeline.Load(out, reg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Summary) != len(res.Summary) || len(loaded.Countries) != len(res.Countries) {
		t.Fatalf("读回长度不一致: %d/%d %d/%d", len(loaded.Summary), len(res.Summary), len(loaded.Countries), len(res.Countries))
	}
	for i := range res.Summary {
		if loaded.Summary[i].CountryCode != res.Summary[i].CountryCode || loaded.Summary[i].Crop != res.Summary[i].Crop ||
			loaded.Summary[i].Completeness != res.Summary[i].Completeness {
			t.Fatalf("第 %d 行不一致: %+v vs %+v", i, loaded.Summary[i], res.Summary[i])
		}
	}
}
