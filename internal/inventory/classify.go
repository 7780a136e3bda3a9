package inventory

import "strings"

// Indicators: 四个可用性指标。
type Indicators struct {
	AreaPlanted      bool
	AreaHarvested    bool
	QuantityProduced bool
	Production       bool
}

// Any 报告是否至少一个指标为真。
func (i Indicators) Any() bool {
	return i.AreaPlanted || i.AreaHarvested || i.QuantityProduced || i.Production
}

// Or 按位或；用于单调累积。
func (i Indicators) Or(o Indicators) Indicators {
	return Indicators{
		AreaPlanted:      i.AreaPlanted || o.AreaPlanted,
		AreaHarvested:    i.AreaHarvested || o.AreaHarvested,
		QuantityProduced: i.QuantityProduced || o.QuantityProduced,
		Production:       i.Production || o.Production,
	}
}

// Count 返回为真的指标数（0..4）。
func (i Indicators) Count() int {
	n := 0
	for _, b := range []bool{i.AreaPlanted, i.AreaHarvested, i.QuantityProduced, i.Production} {
		if b {
			n++
		}
	}
	return n
}

// Labels 按固定顺序返回为真的指标标签。
func (i Indicators) Labels() []string {
	out := make([]string, 0, 4)
	if i.AreaPlanted {
		out = append(out, LabelAreaPlanted)
	}
	if i.AreaHarvested {
		out = append(out, LabelAreaHarvested)
	}
	if i.QuantityProduced {
		out = append(out, LabelQuantityProduced)
	}
	if i.Production {
		out = append(out, LabelProduction)
	}
	return out
}

const (
	LabelAreaPlanted      = "Area Planted"
	LabelAreaHarvested    = "Area Harvested"
	LabelQuantityProduced = "Quantity Produced"
	LabelProduction       = "Production"
)

// keywordRule: 文本包含任一关键词即置位。
type keywordRule struct {
	keywords []string
	apply    func(*Indicators)
}

func (r keywordRule) match(lower string) bool {
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// 指标文本规则：彼此独立，一行可命中多条。
var indicatorRules = []keywordRule{
	{[]string{"planted", "planting", "area planted"}, func(i *Indicators) { i.AreaPlanted = true }},
	{[]string{"harvested", "harvesting", "area harvested"}, func(i *Indicators) { i.AreaHarvested = true }},
	{[]string{"yield", "production"}, func(i *Indicators) { i.Production = true }},
	{[]string{"quantity", "volume", "output"}, func(i *Indicators) { i.QuantityProduced = true }},
}

// 指标组回退规则：仅在指标文本缺失或未命中时使用。
var groupRules = []keywordRule{
	{[]string{"area"}, func(i *Indicators) { i.AreaPlanted, i.AreaHarvested = true, true }},
	{[]string{"production"}, func(i *Indicators) { i.Production = true }},
	{[]string{"quantity", "yield"}, func(i *Indicators) { i.QuantityProduced = true }},
}

func applyRules(rules []keywordRule, text string) Indicators {
	var out Indicators
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.match(lower) {
			r.apply(&out)
		}
	}
	return out
}

// Classify 由指标文本（优先）与指标组文本（回退）得出四个布尔值。
// 两者均缺失或均未命中时返回全 false。
func Classify(indicator string, hasIndicator bool, group string, hasGroup bool) Indicators {
	var out Indicators
	if hasIndicator {
		out = applyRules(indicatorRules, indicator)
	}
	if !out.Any() && hasGroup {
		out = applyRules(groupRules, group)
	}
	return out
}
