package inventory

import (
	"cmp"
	"slices"
)

// Key: 聚合键 (country_code, crop)。
type Key struct {
	Country string
	Crop    string
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Country, b.Country); c != 0 {
		return c
	}
	return cmp.Compare(a.Crop, b.Crop)
}

// Aggregate: 单个 (country, crop) 的累加器。
// 不变量：集合单调不减；布尔值按或累积，一旦为真不再回落。
type Aggregate struct {
	Years       Set[int]
	Seasonality Set[string]
	Regions     Set[string]
	DataSources Set[string]
	Indicators  Set[string]
	Flags       Indicators
}

// NewAggregate 返回空累加器（集合已初始化）。
func NewAggregate() *Aggregate {
	return &Aggregate{
		Years:       Set[int]{},
		Seasonality: Set[string]{},
		Regions:     Set[string]{},
		DataSources: Set[string]{},
		Indicators:  Set[string]{},
	}
}

// Observation: 单行对聚合的贡献。
type Observation struct {
	Key          Key
	Year         int
	HasYear      bool
	Season       string
	Region       string
	Source       string
	Indicator    string
	HasIndicator bool
	Flags        Indicators
}

// Observe 将提取结果分类并组装为 Observation。
func Observe(f Fields) Observation {
	return Observation{
		Key:          Key{Country: f.Country, Crop: f.Crop},
		Year:         f.Year,
		HasYear:      f.HasYear,
		Season:       f.Season,
		Region:       f.Region,
		Source:       f.Source,
		Indicator:    f.Indicator,
		HasIndicator: f.HasIndicator,
		Flags:        Classify(f.Indicator, f.HasIndicator, f.IndicatorGroup, f.HasIndicatorGroup),
	}
}

// Add 合入单个 Observation。
func (a *Aggregate) Add(o Observation) {
	if o.HasYear {
		a.Years.Add(o.Year)
	}
	if o.Season != "" {
		a.Seasonality.Add(o.Season)
	}
	if o.Region != "" {
		a.Regions.Add(o.Region)
	}
	if o.Source != "" {
		a.DataSources.Add(o.Source)
	}
	if o.HasIndicator {
		a.Indicators.Add(o.Indicator)
	}
	a.Flags = a.Flags.Or(o.Flags)
}

// Merge 以并集/或语义并入 b；满足交换律与结合律。
func (a *Aggregate) Merge(b *Aggregate) {
	if b == nil {
		return
	}
	a.Years.Union(b.Years)
	a.Seasonality.Union(b.Seasonality)
	a.Regions.Union(b.Regions)
	a.DataSources.Union(b.DataSources)
	a.Indicators.Union(b.Indicators)
	a.Flags = a.Flags.Or(b.Flags)
}

func (a *Aggregate) Equal(b *Aggregate) bool {
	return a.Flags == b.Flags &&
		a.Years.Equal(b.Years) &&
		a.Seasonality.Equal(b.Seasonality) &&
		a.Regions.Equal(b.Regions) &&
		a.DataSources.Equal(b.DataSources) &&
		a.Indicators.Equal(b.Indicators)
}

// Inventory: Key → Aggregate 的显式容器。
// 同一 Key 在一次运行中只对应一个 Aggregate；非并发安全，由调用方串行化写入。
type Inventory struct {
	entries map[Key]*Aggregate
}

func New() *Inventory {
	return &Inventory{entries: make(map[Key]*Aggregate)}
}

// Entry 取或建（首次访问时创建）。
func (inv *Inventory) Entry(k Key) *Aggregate {
	a, ok := inv.entries[k]
	if !ok {
		a = NewAggregate()
		inv.entries[k] = a
	}
	return a
}

// Lookup 只读查询，不创建。
func (inv *Inventory) Lookup(k Key) (*Aggregate, bool) {
	a, ok := inv.entries[k]
	return a, ok
}

func (inv *Inventory) Add(o Observation) { inv.Entry(o.Key).Add(o) }

// Merge 将 other 的全部条目并入 inv；other 不被修改。
func (inv *Inventory) Merge(other *Inventory) {
	if other == nil {
		return
	}
	for k, a := range other.entries {
		inv.Entry(k).Merge(a)
	}
}

// Len 返回 (country, crop) 条目数。
func (inv *Inventory) Len() int { return len(inv.entries) }

// Keys 按 (country, crop) 升序返回全部键。
func (inv *Inventory) Keys() []Key {
	out := make([]Key, 0, len(inv.entries))
	for k := range inv.entries {
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out
}

// Countries 返回去重升序的国家代码。
func (inv *Inventory) Countries() []string {
	s := Set[string]{}
	for k := range inv.entries {
		s.Add(k.Country)
	}
	return s.Sorted()
}

// Crops 返回去重升序的作物名。
func (inv *Inventory) Crops() []string {
	s := Set[string]{}
	for k := range inv.entries {
		s.Add(k.Crop)
	}
	return s.Sorted()
}

func (inv *Inventory) Equal(other *Inventory) bool {
	if inv.Len() != other.Len() {
		return false
	}
	for k, a := range inv.entries {
		b, ok := other.entries[k]
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}
