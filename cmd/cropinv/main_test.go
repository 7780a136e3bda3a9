package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	cfgpkg "cropinv/internal/config"
	"cropinv/internal/dashboard"
	"cropinv/internal/diag"
	"cropinv/internal/pipeline"
	"cropinv/pkg/contract"
)

const csvHeader = "country_code,product,season_year,start_date,indicator,indicator_group,admin_1,source_organization\n"

// setup: 切换到临时目录、重置旗标、日志丢弃；返回临时目录。
func setup(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	flag.CommandLine = flag.NewFlagSet("cropinv", flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	oldArgs := os.Args
	os.Args = append([]string{"cropinv"}, args...)
	t.Cleanup(func() { os.Args = oldArgs })

	origLogger, origRun, origLoad, origServe := newLogger, pipelineRun, pipelineLoad, serveDashboard
	newLogger = func(id, level string) *diag.Logger { return diag.NewLoggerWithSink(id, level, io.Discard) }
	t.Cleanup(func() {
		newLogger, pipelineRun, pipelineLoad, serveDashboard = origLogger, origRun, origLoad, origServe
	})
	t.Setenv("CROPINV_CONFIG_JSON", "")
	t.Setenv("CROPINV_CONFIG_FILE", "")
	t.Setenv("PORT", "")
	return dir
}

func writeData(t *testing.T, root string) {
	t.Helper()
	path := filepath.Join(root, "KE", "LA_cropdata.csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data := csvHeader +
		"KE,Maize,2019,,Area Harvested,,Rift,KNBS\n" +
		"KE,Maize,2020,,Production,,Coast,KNBS\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

// UT-CLI-01: --init-config 生成模板
func TestRunInitConfig(t *testing.T) {
	dir := setup(t, "--init-config", "conf")
	if code := run(); code != exitOK {
		t.Fatalf("run 返回 %d", code)
	}
	for _, name := range []string{"config.json", ".env"} {
		if _, err := os.Stat(filepath.Join(dir, "conf", name)); err != nil {
			t.Fatalf("%s 未生成: %v", name, err)
		}
	}
}

func TestRunInitConfigDefault(t *testing.T) {
	dir := setup(t, "--init-config")
	if code := run(); code != exitOK {
		t.Fatalf("run 返回 %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("当前目录未生成 config.json: %v", err)
	}
}

// UT-CLI-02: 配置错误 → 3
func TestRunConfigErrors(t *testing.T) {
	setup(t, "--config", "absent.json")
	if code := run(); code != exitConfig {
		t.Fatalf("缺失配置文件应返回 3, 得到 %d", code)
	}

	setup(t, "--serve=false")
	if code := run(); code != exitConfig {
		t.Fatalf("缺少 data_dir 应返回 3, 得到 %d", code)
	}

	setup(t, "--data-dir", "m49")
	t.Setenv("CROPINV_COMPONENTS_TABLE", "xlsx")
	if code := run(); code != exitConfig {
		t.Fatalf("未注册组件应返回 3, 得到 %d", code)
	}
}

// UT-CLI-03: 数据目录不存在 → 2
func TestRunMissingDataDir(t *testing.T) {
	setup(t, "--data-dir", "nowhere", "--serve=false", "--status=false")
	if code := run(); code != exitMissingInput {
		t.Fatalf("应返回 2, 得到 %d", code)
	}
}

// UT-CLI-04: 完整运行写出三个输出文件
func TestRunProcess(t *testing.T) {
	dir := setup(t, "--data_dir", "m49", "--output_dir", "out", "--serve=false", "--status=false")
	writeData(t, filepath.Join(dir, "m49"))
	if code := run(); code != exitOK {
		t.Fatalf("run 返回 %d", code)
	}
	for _, name := range []string{pipeline.InventoryFile, pipeline.SummaryFile, pipeline.CountrySummaryFile} {
		if _, err := os.Stat(filepath.Join(dir, "out", name)); err != nil {
			t.Fatalf("%s 未写出: %v", name, err)
		}
	}
}

// UT-CLI-05: --skip-processing 读回已有输出，不再扫描
func TestRunSkipProcessing(t *testing.T) {
	dir := setup(t, "--data-dir", "m49", "--output-dir", "out", "--serve=false", "--status=false")
	writeData(t, filepath.Join(dir, "m49"))
	if code := run(); code != exitOK {
		t.Fatalf("首次运行返回 %d", code)
	}

	setup(t, "--output-dir", filepath.Join(dir, "out"), "--skip-processing", "--serve=false", "--status=false")
	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		t.Fatalf("跳过处理时不应扫描")
		return pipeline.Result{}, nil
	}
	loaded := 0
	pipelineLoad = func(d string, names contract.CountryNamer) (pipeline.Result, error) {
		loaded++
		return pipeline.Load(d, names)
	}
	if code := run(); code != exitOK {
		t.Fatalf("skip 运行返回 %d", code)
	}
	if loaded != 1 {
		t.Fatalf("应读回一次, 实际 %d", loaded)
	}
}

// UT-CLI-06: 输出缺失时 skip 退化为处理
func TestRunSkipWithoutOutputs(t *testing.T) {
	setup(t, "--data-dir", "m49", "--skip-processing", "--serve=false", "--status=false")
	called := false
	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		called = true
		return pipeline.Result{}, nil
	}
	if code := run(); code != exitOK || !called {
		t.Fatalf("应执行处理: code=%d called=%v", code, called)
	}
}

// UT-CLI-07: CLI 覆盖 ENV 与配置
func TestRunCLIOverrides(t *testing.T) {
	setup(t, "--concurrency", "5", "--data-dir", "cli", "--serve=false", "--status=false")
	t.Setenv("CROPINV_CONFIG_JSON", `{"data_dir":"inline","concurrency":2}`)
	t.Setenv("CROPINV_CONCURRENCY", "3")
	var got pipeline.Settings
	pipelineRun = func(_ context.Context, _ pipeline.Components, set pipeline.Settings, _ *diag.Logger) (pipeline.Result, error) {
		got = set
		return pipeline.Result{}, nil
	}
	if code := run(); code != exitOK {
		t.Fatalf("run 返回 %d", code)
	}
	if got.Concurrency != 5 || got.Root != "cli" || got.Reporter == nil {
		t.Fatalf("覆盖结果错误: %+v", got)
	}
}

// UT-CLI-08: 运行期错误 → 1
func TestRunPipelineError(t *testing.T) {
	setup(t, "--data-dir", "m49", "--serve=false", "--status=false")
	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, errors.New("boom")
	}
	if code := run(); code != exitRuntime {
		t.Fatalf("应返回 1, 得到 %d", code)
	}
}

// UT-CLI-09: 处理后启动仪表盘
func TestRunServe(t *testing.T) {
	dir := setup(t, "--data-dir", "m49", "--output-dir", "out", "--port", "9123", "--status=false")
	writeData(t, filepath.Join(dir, "m49"))
	var srv *dashboard.Server
	serveDashboard = func(_ context.Context, s *dashboard.Server) error {
		srv = s
		return nil
	}
	if code := run(); code != exitOK {
		t.Fatalf("run 返回 %d", code)
	}
	if srv == nil {
		t.Fatalf("仪表盘未启动")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inventory/KE/Maize", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("仪表盘数据缺失: %d %s", rec.Code, rec.Body.String())
	}

	setup(t, "--data-dir", "m49", "--status=false")
	serveDashboard = func(context.Context, *dashboard.Server) error { return errors.New("address in use") }
	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (pipeline.Result, error) {
		return pipeline.Result{}, nil
	}
	if code := run(); code != exitRuntime {
		t.Fatalf("仪表盘失败应返回 1, 得到 %d", code)
	}
}

func TestCliOverlay(t *testing.T) {
	f := cliFlags{dataDir: "d", port: 9000, skip: false, serve: false}
	over := cliOverlay(f, map[string]bool{"serve": true})
	if over.DataDir != "d" || over.Dashboard.Port != 9000 {
		t.Fatalf("覆盖错误: %+v", over)
	}
	if over.SkipProcessing != nil {
		t.Fatalf("未显式给出的 skip 不应覆盖")
	}
	if over.Dashboard.Enabled == nil || *over.Dashboard.Enabled {
		t.Fatalf("--serve=false 应覆盖")
	}
	merged := cfgpkg.Merge(cfgpkg.Defaults(), over)
	if merged.Serve() || merged.OutputDir != "data" {
		t.Fatalf("合并错误: %+v", merged)
	}
}

func TestNormalizeInitArg(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()
	cases := []struct{ in, want []string }{
		{[]string{"x", "--init-config"}, []string{"x", "--init-config", "."}},
		{[]string{"x", "--init-config", "--status=false"}, []string{"x", "--init-config", ".", "--status=false"}},
		{[]string{"x", "--init-config", "dir"}, []string{"x", "--init-config", "dir"}},
	}
	for _, c := range cases {
		os.Args = c.in
		normalizeInitArg()
		if len(os.Args) != len(c.want) {
			t.Fatalf("%v → %v", c.in, os.Args)
		}
		for i := range c.want {
			if os.Args[i] != c.want[i] {
				t.Fatalf("%v → %v", c.in, os.Args)
			}
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	if exitCodeFor(diag.CodeMissingInput) != exitMissingInput || exitCodeFor(diag.CodeIO) != exitRuntime {
		t.Fatalf("退出码映射错误")
	}
}
