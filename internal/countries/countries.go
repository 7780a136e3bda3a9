package countries

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	bcountries "github.com/biter777/countries"
	"github.com/rotisserie/eris"

	"cropinv/internal/diag"
	"cropinv/internal/inventory"
	"cropinv/pkg/contract"
)

// Country: 单个国家的代码与显示名。ISO2 可为空（仅来自 ISO3 的条目）。
type Country struct {
	ISO2 string
	ISO3 string
	Name string
}

// Registry: 国家代码登记表，ISO2/ISO3 均可查询。
// 先加入者优先：后续来源只补充缺失的代码。
type Registry struct {
	byISO2 map[string]Country
	byISO3 map[string]Country
}

var _ contract.CountryNamer = (*Registry)(nil)

func New() *Registry {
	return &Registry{byISO2: make(map[string]Country), byISO3: make(map[string]Country)}
}

func norm(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Add 登记 c；已存在的代码不被覆盖。返回是否有新代码加入。
func (r *Registry) Add(c Country) bool {
	c.ISO2, c.ISO3, c.Name = norm(c.ISO2), norm(c.ISO3), strings.TrimSpace(c.Name)
	added := false
	if c.ISO2 != "" {
		if _, ok := r.byISO2[c.ISO2]; !ok {
			r.byISO2[c.ISO2] = c
			added = true
		}
	}
	if c.ISO3 != "" {
		if _, ok := r.byISO3[c.ISO3]; !ok {
			r.byISO3[c.ISO3] = c
			added = true
		}
	}
	return added
}

// Len 返回已登记的国家数（按 ISO2 与仅 ISO3 条目去重）。
func (r *Registry) Len() int {
	n := len(r.byISO2)
	for _, c := range r.byISO3 {
		if c.ISO2 == "" {
			n++
		}
	}
	return n
}

// Lookup 按 ISO2 或 ISO3 查询。
func (r *Registry) Lookup(code string) (Country, bool) {
	code = norm(code)
	if c, ok := r.byISO2[code]; ok {
		return c, true
	}
	c, ok := r.byISO3[code]
	return c, ok
}

// Name 返回显示名；未知代码或名称为空时回退为 "Country {code}"。
func (r *Registry) Name(code string) string {
	if c, ok := r.Lookup(code); ok && c.Name != "" {
		return c.Name
	}
	return inventory.FallbackCountryName(code)
}

// ISO3 返回地图使用的 ISO3 代码。
func (r *Registry) ISO3(code string) (string, bool) {
	c, ok := r.Lookup(code)
	if !ok || c.ISO3 == "" {
		return "", false
	}
	return c.ISO3, true
}

// ReadCSV 读取列 ISO2_Code、ISO3_Code、Country_Name（表头大小写不敏感）。
// 两个代码都缺失的行被跳过。
func ReadCSV(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(errors.Join(contract.ErrFileInvalid, err), "countries: header")
	}
	idx := map[string]int{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	_, has2 := idx["iso2_code"]
	_, has3 := idx["iso3_code"]
	if !has2 && !has3 {
		return nil, eris.Wrap(contract.ErrFileInvalid, "countries: missing ISO2_Code/ISO3_Code columns")
	}
	get := func(rec []string, col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	reg := New()
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(errors.Join(contract.ErrFileInvalid, err), "countries: read")
		}
		c := Country{ISO2: get(rec, "iso2_code"), ISO3: get(rec, "iso3_code"), Name: get(rec, "country_name")}
		if norm(c.ISO2) == "" && norm(c.ISO3) == "" {
			continue
		}
		reg.Add(c)
	}
	return reg, nil
}

// LoadCSV 从文件读取映射；文件不存在时返回 ErrMissingInput。
func LoadCSV(path string) (*Registry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(contract.ErrMissingInput, "countries: %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "countries: %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// Enrich 以 ISO 3166 代码表补充缺失代码，返回新增条目数。
func (r *Registry) Enrich() int {
	n := 0
	for _, c := range bcountries.All() {
		if !c.IsValid() {
			continue
		}
		if r.Add(Country{ISO2: c.Alpha2(), ISO3: c.Alpha3(), Name: c.String()}) {
			n++
		}
	}
	return n
}

// fallback: 登记表为空时使用的最小映射。
var fallback = []Country{
	{ISO3: "USA", Name: "United States"},
	{ISO3: "CAN", Name: "Canada"},
	{ISO3: "MEX", Name: "Mexico"},
	{ISO3: "BRA", Name: "Brazil"},
	{ISO3: "ARG", Name: "Argentina"},
	{ISO3: "CHN", Name: "China"},
	{ISO3: "IND", Name: "India"},
	{ISO3: "JPN", Name: "Japan"},
	{ISO3: "GBR", Name: "United Kingdom"},
	{ISO3: "FRA", Name: "France"},
	{ISO3: "DEU", Name: "Germany"},
}

// ApplyFallback 仅在登记表为空时加入内置映射。
func (r *Registry) ApplyFallback() bool {
	if r.Len() > 0 {
		return false
	}
	for _, c := range fallback {
		r.Add(c)
	}
	return true
}

// Build 依次：映射文件（可选）→ 代码表补充（enrich）→ 空表回退。
// 映射文件缺失或非法只记录告警，不中断。
func Build(path string, enrich bool, logger *diag.Logger) *Registry {
	if logger == nil {
		logger = diag.NewNopLogger()
	}
	reg := New()
	if strings.TrimSpace(path) != "" {
		loaded, err := LoadCSV(path)
		if err != nil {
			logger.WarnWith("countries", string(diag.Classify(err)), err.Error(), path, nil)
		} else {
			reg = loaded
		}
	}
	kv := map[string]string{}
	if enrich {
		kv["enriched"] = strconv.Itoa(reg.Enrich())
	}
	if reg.ApplyFallback() {
		kv["fallback"] = "true"
	}
	kv["countries"] = strconv.Itoa(reg.Len())
	logger.InfoKV("countries", "registry ready", kv)
	return reg
}
