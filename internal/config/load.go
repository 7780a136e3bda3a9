package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"cropinv/pkg/contract"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "CROPINV_"

// Defaults 返回带有安全默认值的 Config 雏形。
// data_dir 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		OutputDir:     "data",
		Concurrency:   1,
		ProgressEvery: 100,
		Logging:       Logging{Level: "info"},
		Components: Components{
			Reader: "fs",
			Table:  "csv",
			Writer: "fs",
		},
		Dashboard: Dashboard{
			Addr:            "0.0.0.0",
			Port:            8050,
			CacheTTLSeconds: 300,
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "config: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	default:
		return LoadJSON(b)
	}
}

// LoadJSON 解析原始 JSON（严格拒绝未知字段）。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "config: decode json")
	}
	return cfg, nil
}

// LoadYAML 将 YAML 转为 JSON 后走同一严格解码，保证两种格式字段集一致。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, eris.Wrap(err, "config: decode yaml")
	}
	if doc == nil {
		return Config{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return Config{}, eris.Wrap(err, "config: yaml to json")
	}
	return LoadJSON(b)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.DataDir); s != "" {
		out.DataDir = s
	}
	if s := strings.TrimSpace(over.OutputDir); s != "" {
		out.OutputDir = s
	}
	if s := strings.TrimSpace(over.CountryMapping); s != "" {
		out.CountryMapping = s
	}
	if over.SkipProcessing != nil {
		out.SkipProcessing = cloneBool(over.SkipProcessing)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.ProgressEvery != 0 {
		out.ProgressEvery = over.ProgressEvery
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Table != "" {
		out.Components.Table = over.Components.Table
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Table) > 0 {
		out.Options.Table = cloneRaw(over.Options.Table)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}

	if over.Countries.Enrich != nil {
		out.Countries.Enrich = cloneBool(over.Countries.Enrich)
	}
	if over.Dashboard.Enabled != nil {
		out.Dashboard.Enabled = cloneBool(over.Dashboard.Enabled)
	}
	if s := strings.TrimSpace(over.Dashboard.Addr); s != "" {
		out.Dashboard.Addr = s
	}
	if over.Dashboard.Port != 0 {
		out.Dashboard.Port = over.Dashboard.Port
	}
	if over.Dashboard.CacheTTLSeconds != 0 {
		out.Dashboard.CacheTTLSeconds = over.Dashboard.CacheTTLSeconds
	}
	if over.Dashboard.RateLimitRPM != 0 {
		out.Dashboard.RateLimitRPM = over.Dashboard.RateLimitRPM
	}
	if over.Dashboard.RateBurst != 0 {
		out.Dashboard.RateBurst = over.Dashboard.RateBurst
	}
	if len(over.Dashboard.AllowedOrigins) > 0 {
		out.Dashboard.AllowedOrigins = cloneStrings(over.Dashboard.AllowedOrigins)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖。
// 前缀 CROPINV_；另外接受托管平台常用的 PORT（优先级低于 CROPINV_DASHBOARD_PORT）。
// 空值视为未设置；数值/布尔格式错误返回 ErrInvalidInput。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	var hostPort int
	for _, kv := range environ {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		key, val := kv[:eq], strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		if key == "PORT" {
			v, err := envInt(key, val)
			if err != nil {
				return Config{}, err
			}
			hostPort = v
			continue
		}
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		var err error
		switch strings.TrimPrefix(key, EnvPrefix) {
		case "DATA_DIR":
			over.DataDir = val
		case "OUTPUT_DIR":
			over.OutputDir = val
		case "COUNTRY_MAPPING":
			over.CountryMapping = val
		case "SKIP_PROCESSING":
			over.SkipProcessing, err = envBool(key, val)
		case "CONCURRENCY":
			over.Concurrency, err = envInt(key, val)
		case "PROGRESS_EVERY":
			over.ProgressEvery, err = envInt(key, val)
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_TABLE":
			over.Components.Table = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_TABLE_JSON":
			over.Options.Table = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		case "COUNTRIES_ENRICH":
			over.Countries.Enrich, err = envBool(key, val)
		case "DASHBOARD_ENABLED":
			over.Dashboard.Enabled, err = envBool(key, val)
		case "DASHBOARD_ADDR":
			over.Dashboard.Addr = val
		case "DASHBOARD_PORT":
			over.Dashboard.Port, err = envInt(key, val)
		case "DASHBOARD_CACHE_TTL_SECONDS":
			over.Dashboard.CacheTTLSeconds, err = envInt(key, val)
		case "DASHBOARD_RATE_LIMIT_RPM":
			over.Dashboard.RateLimitRPM, err = envInt(key, val)
		case "DASHBOARD_RATE_BURST":
			over.Dashboard.RateBurst, err = envInt(key, val)
		case "DASHBOARD_ALLOWED_ORIGINS":
			over.Dashboard.AllowedOrigins = splitComma(val)
		}
		if err != nil {
			return Config{}, err
		}
	}
	if over.Dashboard.Port == 0 {
		over.Dashboard.Port = hostPort
	}
	return over, nil
}

func envInt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, eris.Wrapf(contract.ErrInvalidInput, "config: %s=%q is not an integer", key, val)
	}
	return n, nil
}

func envBool(key, val string) (*bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, eris.Wrapf(contract.ErrInvalidInput, "config: %s=%q is not a boolean", key, val)
	}
	return &b, nil
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Source 描述配置文件来源，便于日志与诊断。
type Source struct {
	Path   string
	Inline bool
}

// 未指定 --config 时依次探测的文件。
var defaultFiles = []string{"config.json", "config.yaml", "config.yml"}

// Resolve 组合 Defaults → 文件（path、CROPINV_CONFIG_FILE 或默认文件）
// 或 CROPINV_CONFIG_JSON → ENV 覆盖。CLI 覆盖由调用方再 Merge。
func Resolve(path string, environ []string) (Config, Source, error) {
	env := func(k string) string {
		for _, kv := range environ {
			if strings.HasPrefix(kv, k+"=") {
				return strings.TrimSpace(kv[len(k)+1:])
			}
		}
		return ""
	}
	cfg := Defaults()
	var src Source
	var (
		base Config
		err  error
	)
	if path == "" {
		path = env(EnvPrefix + "CONFIG_FILE")
	}
	switch inline := env(EnvPrefix + "CONFIG_JSON"); {
	case inline != "":
		src.Inline = true
		base, err = LoadJSON([]byte(inline))
	default:
		if path == "" {
			for _, name := range defaultFiles {
				if st, serr := os.Stat(name); serr == nil && st.Mode().IsRegular() {
					path = name
					break
				}
			}
		}
		if path == "" {
			break
		}
		src.Path = path
		base, err = LoadFile(path)
	}
	if err != nil {
		return Config{}, src, err
	}
	cfg = Merge(cfg, base)
	over, err := EnvOverlay(environ)
	if err != nil {
		return Config{}, src, err
	}
	return Merge(cfg, over), src, nil
}
