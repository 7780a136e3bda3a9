package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// DataDir: 作物数据根目录；skip_processing 且已有输出时可为空。
	DataDir   string `json:"data_dir"`
	OutputDir string `json:"output_dir"`
	// CountryMapping: ISO2_Code/ISO3_Code/Country_Name 映射 CSV（可选）。
	CountryMapping string `json:"country_mapping"`
	// SkipProcessing: 输出已存在时直接读回，不重新扫描。
	SkipProcessing *bool `json:"skip_processing,omitempty"`
	Concurrency    int   `json:"concurrency"`
	// ProgressEvery: 非 TTY 时每处理多少个文件打印一次进度。
	ProgressEvery int     `json:"progress_every"`
	Logging       Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Countries Countries `json:"countries"`
	Dashboard Dashboard `json:"dashboard"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Table  string `json:"table"`
	Writer string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader,omitempty"`
	Table  json.RawMessage `json:"table,omitempty"`
	Writer json.RawMessage `json:"writer,omitempty"`
}

// Countries: 国家登记表来源。
type Countries struct {
	// Enrich: 以 ISO 3166 代码表补充映射文件缺失的国家。nil 视为 true。
	Enrich *bool `json:"enrich,omitempty"`
}

// Dashboard: HTTP 仪表盘。
type Dashboard struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	Addr            string   `json:"addr"`
	Port            int      `json:"port"`
	CacheTTLSeconds int      `json:"cache_ttl_seconds"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
	// 每客户端每分钟请求数；0 关闭限流
	RateLimitRPM int `json:"rate_limit_rpm"`
	RateBurst    int `json:"rate_burst"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Skip 报告是否跳过处理。
func (c Config) Skip() bool { return boolOr(c.SkipProcessing, false) }

// Enrich 报告是否补充国家代码表。
func (c Config) Enrich() bool { return boolOr(c.Countries.Enrich, true) }

// Serve 报告处理结束后是否启动仪表盘。
func (c Config) Serve() bool { return boolOr(c.Dashboard.Enabled, true) }

// ListenAddr 组合 addr 与 port；addr 已含端口时原样返回。
func (d Dashboard) ListenAddr() string {
	host := strings.TrimSpace(d.Addr)
	if strings.Contains(host, ":") && !strings.HasSuffix(host, ":") {
		return host
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(host, ":"), d.Port)
}

// CacheTTL 返回视图缓存时长；<=0 表示不缓存。
func (d Dashboard) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}
