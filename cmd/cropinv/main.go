package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "cropinv/internal/config"
	"cropinv/internal/dashboard"
	"cropinv/internal/diag"
	"cropinv/internal/pipeline"
)

// 退出码。
const (
	exitOK           = 0
	exitRuntime      = 1
	exitMissingInput = 2
	exitConfig       = 3
)

// 测试替换点。
var (
	pipelineRun    = pipeline.Run
	pipelineLoad   = pipeline.Load
	newLogger      = diag.NewLogger
	serveDashboard = func(ctx context.Context, s *dashboard.Server) error { return s.ListenAndServe(ctx) }
)

// CLI：扫描作物数据目录 → 写出清单 → 启动仪表盘（可关闭）。
// 同时接受 --data-dir 与 --data_dir 两种写法。
func main() {
	os.Exit(run())
}

type cliFlags struct {
	config         string
	dataDir        string
	outputDir      string
	countryMapping string
	port           int
	concurrency    int
	skip           bool
	serve          bool
	status         bool
	initDir        string
}

func parseFlags() (cliFlags, map[string]bool) {
	var f cliFlags
	fs := flag.CommandLine
	fs.StringVar(&f.config, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	for _, name := range []string{"data-dir", "data_dir"} {
		fs.StringVar(&f.dataDir, name, "", "作物数据根目录（覆盖配置）")
	}
	for _, name := range []string{"output-dir", "output_dir"} {
		fs.StringVar(&f.outputDir, name, "", "输出目录（覆盖配置，默认 data）")
	}
	for _, name := range []string{"country-mapping", "country_mapping"} {
		fs.StringVar(&f.countryMapping, name, "", "国家代码映射 CSV（ISO2_Code, ISO3_Code, Country_Name）")
	}
	for _, name := range []string{"skip-processing", "skip_processing"} {
		fs.BoolVar(&f.skip, name, false, "输出已存在时直接读回，不重新扫描")
	}
	fs.IntVar(&f.port, "port", 0, "仪表盘端口（覆盖配置，默认 8050）")
	fs.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	fs.BoolVar(&f.serve, "serve", true, "处理结束后启动仪表盘")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	fs.StringVar(&f.initDir, "init-config", "", "在指定目录生成 config.json 和 .env 模板（已存在则跳过）；不带值时默认当前目录")
	normalizeInitArg()
	_ = fs.Parse(os.Args[1:])
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[strings.ReplaceAll(fl.Name, "_", "-")] = true })
	return f, set
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = cfgpkg.LoadDotEnv(".env")
	logger := newLogger(corrID, "info")
	defer func() { _ = logger.Sync() }()

	f, set := parseFlags()

	if dir := strings.TrimSpace(f.initDir); dir != "" {
		if err := cfgpkg.WriteTemplate(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), err.Error(), &start)
			return exitConfig
		}
		return exitOK
	}

	cfg, src, err := cfgpkg.Resolve(f.config, os.Environ())
	if err != nil {
		fprintf(os.Stderr, "配置解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), err.Error(), &start)
		return exitConfig
	}
	cfg = cfgpkg.Merge(cfg, cliOverlay(f, set))

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(cfg)
		logger.Error("config", string(diag.Classify(err)), err.Error(), &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别重建 logger
	_ = logger.Sync()
	logger = newLogger(corrID, cfg.Logging.Level)
	logger.DebugStart("config", "effective", "", map[string]string{
		"source":          sourceName(src),
		"data_dir":        cfg.DataDir,
		"output_dir":      cfg.OutputDir,
		"country_mapping": cfg.CountryMapping,
		"concurrency":     strconv.Itoa(cfg.Concurrency),
		"skip_processing": strconv.FormatBool(cfg.Skip()),
		"reader":          cfg.Components.Reader,
		"table":           cfg.Components.Table,
		"writer":          cfg.Components.Writer,
		"serve":           strconv.FormatBool(cfg.Serve()),
	})

	comp, settings, reg, err := cfgpkg.Assemble(cfg, logger)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), err.Error(), &start)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := diag.NewTerminal(os.Stderr, f.status, cfg.ProgressEvery)
	settings.Reporter = term

	var res pipeline.Result
	if cfg.Skip() && pipeline.Exists(cfg.OutputDir) {
		term.Println(fmt.Sprintf("[skip] 使用已有输出 %s", cfg.OutputDir))
		res, err = pipelineLoad(cfg.OutputDir, reg)
	} else {
		if cfg.Skip() {
			logger.WarnWith("pipeline", string(diag.CodeMissingInput), "outputs not found; processing", cfg.OutputDir, nil)
		}
		term.RunStart(settings.Root, settings.Concurrency)
		t := logger.Start("pipeline", "run")
		res, err = pipelineRun(ctx, comp, settings, logger)
		term.RunFinish(res.Stats.Progress, res.Stats.Entries, err == nil, time.Since(start))
		if err == nil {
			t.Finish("run", int64(res.Stats.Entries))
		}
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), err.Error(), &start)
		diag.IncError("pipeline", string(code))
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		return exitCodeFor(code)
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())

	if !cfg.Serve() {
		return exitOK
	}
	srv := dashboard.NewServer(dashboard.NewDataset(res, reg), dashboard.Config{
		Addr:           cfg.Dashboard.ListenAddr(),
		CacheTTL:       cfg.Dashboard.CacheTTL(),
		AllowedOrigins: cfg.Dashboard.AllowedOrigins,
		RateLimitRPM:   cfg.Dashboard.RateLimitRPM,
		RateBurst:      cfg.Dashboard.RateBurst,
	}, logger)
	term.Println(fmt.Sprintf("[serve] 仪表盘 http://%s （Ctrl+C 停止）", cfg.Dashboard.ListenAddr()))
	if err := serveDashboard(ctx, srv); err != nil {
		fprintf(os.Stderr, "仪表盘运行失败: %v\n", err)
		logger.Error("dashboard", string(diag.Classify(err)), err.Error(), nil)
		return exitRuntime
	}
	return exitOK
}

// cliOverlay 只包含命令行显式给出的项。
func cliOverlay(f cliFlags, set map[string]bool) cfgpkg.Config {
	var over cfgpkg.Config
	over.DataDir = f.dataDir
	over.OutputDir = f.outputDir
	over.CountryMapping = f.countryMapping
	if f.concurrency > 0 {
		over.Concurrency = f.concurrency
	}
	if f.port > 0 {
		over.Dashboard.Port = f.port
	}
	if set["skip-processing"] {
		v := f.skip
		over.SkipProcessing = &v
	}
	if set["serve"] {
		v := f.serve
		over.Dashboard.Enabled = &v
	}
	return over
}

func exitCodeFor(code diag.Code) int {
	if code == diag.CodeMissingInput {
		return exitMissingInput
	}
	return exitRuntime
}

func sourceName(src cfgpkg.Source) string {
	switch {
	case src.Inline:
		return "env:CROPINV_CONFIG_JSON"
	case src.Path != "":
		return src.Path
	default:
		return "defaults"
	}
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// normalizeInitArg: 允许 --init-config 不带值（等价于 --init-config .）。
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}
