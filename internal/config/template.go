package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultTemplateConfig 返回一个可运行的默认配置模板：
// 数据目录 ./m49，输出到 ./data；组件名采用仓库内置实现，选项给出全部键。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.DataDir = "m49"
	cfg.CountryMapping = "country_codes_with_iso3.csv"
	enrich, serve, skip := true, true, false
	cfg.SkipProcessing = &skip
	cfg.Countries.Enrich = &enrich
	cfg.Dashboard.Enabled = &serve
	cfg.Dashboard.AllowedOrigins = []string{"*"}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "match_substrings": ["cropdata"],
  "exclude_dir_names": [".git", "node_modules"],
  "include_hidden_dirs": false
}`)
	cfg.Options.Table = json.RawMessage(`{
  "comma": ",",
  "na_values": [],
  "keep_default_na": true
}`)
	// output_dir 由顶层 output_dir 注入
	cfg.Options.Writer = json.RawMessage(`{
  "buf_size": 65536
}`)
	return cfg
}

// WriteTemplate 在 dir 下生成 config.json 与 .env；已存在的文件不覆盖。
func WriteTemplate(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "config: mkdir %s", dir)
	}
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return eris.Wrap(err, "config: marshal template")
	}
	if err := writeNew(filepath.Join(dir, "config.json"), append(b, '\n')); err != nil {
		return err
	}
	return writeNew(filepath.Join(dir, ".env"), []byte(dotEnvTemplate()))
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "config: create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "config: write %s", path)
	}
	return eris.Wrapf(f.Close(), "config: close %s", path)
}

func dotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# cropinv .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("CROPINV_CONFIG_FILE=\n")
	b.WriteString("CROPINV_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"DATA_DIR", "OUTPUT_DIR", "COUNTRY_MAPPING", "SKIP_PROCESSING", "CONCURRENCY", "PROGRESS_EVERY", "LOG_LEVEL"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_TABLE", "COMPONENTS_WRITER", "OPTIONS_READER_JSON", "OPTIONS_TABLE_JSON", "OPTIONS_WRITER_JSON"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 国家登记表与仪表盘\n")
	for _, k := range []string{"COUNTRIES_ENRICH", "DASHBOARD_ENABLED", "DASHBOARD_ADDR", "DASHBOARD_PORT", "DASHBOARD_CACHE_TTL_SECONDS", "DASHBOARD_RATE_LIMIT_RPM", "DASHBOARD_RATE_BURST", "DASHBOARD_ALLOWED_ORIGINS"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("# 托管平台端口（低于 CROPINV_DASHBOARD_PORT）\nPORT=\n")
	return b.String()
}
