package config

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"cropinv/internal/countries"
	"cropinv/internal/diag"
	"cropinv/internal/pipeline"
	"cropinv/pkg/contract"
	"cropinv/pkg/registry"
)

func invalid(format string, args ...any) error {
	return eris.Wrapf(contract.ErrInvalidInput, "config: "+format, args...)
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" && !cfg.Skip() {
		return invalid("data_dir not set")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return invalid("output_dir not set")
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	if cfg.ProgressEvery < 1 {
		return invalid("progress_every must be >= 1")
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Table, d.Components.Table); registry.Table[name] == nil {
		return invalid("table %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	if cfg.Serve() && (cfg.Dashboard.Port < 1 || cfg.Dashboard.Port > 65535) {
		return invalid("dashboard.port %d out of range", cfg.Dashboard.Port)
	}
	if cfg.Dashboard.CacheTTLSeconds < 0 {
		return invalid("dashboard.cache_ttl_seconds must be >= 0")
	}
	if cfg.Dashboard.RateLimitRPM < 0 || cfg.Dashboard.RateBurst < 0 {
		return invalid("dashboard.rate_limit_rpm/rate_burst must be >= 0")
	}
	return nil
}

// Assemble 构造 Components、Settings 与国家登记表。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 顶层 output_dir 总是写入 fs writer 的 options。
func Assemble(cfg Config, logger *diag.Logger) (pipeline.Components, pipeline.Settings, *countries.Registry, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, err
	}
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	tn := effName(cfg.Components.Table, d.Components.Table)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, eris.Wrapf(err, "config: reader %q options", rn)
	}
	tbl, err := registry.Table[tn](cfg.Options.Table)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, eris.Wrapf(err, "config: table %q options", tn)
	}
	wopts := cfg.Options.Writer
	if wn == "fs" {
		if wopts, err = withOutputDir(wopts, cfg.OutputDir); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, nil, err
		}
	}
	w, err := registry.Writer[wn](wopts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, nil, eris.Wrapf(err, "config: writer %q options", wn)
	}

	reg := countries.Build(cfg.CountryMapping, cfg.Enrich(), logger)
	comp := pipeline.Components{Reader: r, Table: tbl, Writer: w, Names: reg}
	set := pipeline.Settings{Root: cfg.DataDir, Concurrency: cfg.Concurrency}
	return comp, set, reg, nil
}

func withOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrap(err, "config: options.writer")
		}
	}
	v, err := json.Marshal(dir)
	if err != nil {
		return nil, eris.Wrap(err, "config: output_dir")
	}
	m["output_dir"] = v
	out, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "config: options.writer")
	}
	return out, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
