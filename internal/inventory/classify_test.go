package inventory

import "testing"

// UT-CLS-01: 指标文本关键词（大小写不敏感，相互独立）
func TestClassifyIndicatorText(t *testing.T) {
	tests := []struct {
		text string
		want Indicators
	}{
		{"Area Planted", Indicators{AreaPlanted: true}},
		{"PLANTING area", Indicators{AreaPlanted: true}},
		{"Area Harvested", Indicators{AreaHarvested: true}},
		{"harvesting", Indicators{AreaHarvested: true}},
		{"Yield", Indicators{Production: true}},
		{"Production", Indicators{Production: true}},
		{"Quantity", Indicators{QuantityProduced: true}},
		{"volume exported", Indicators{QuantityProduced: true}},
		{"Output", Indicators{QuantityProduced: true}},
		{"Production quantity", Indicators{Production: true, QuantityProduced: true}},
		{"Area planted and harvested", Indicators{AreaPlanted: true, AreaHarvested: true}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Classify(tt.text, true, "", false); got != tt.want {
				t.Fatalf("Classify(%q) = %+v want %+v", tt.text, got, tt.want)
			}
		})
	}
}

// UT-CLS-02: 指标组回退
func TestClassifyGroupFallback(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hasText  bool
		group    string
		hasGroup bool
		want     Indicators
	}{
		{"文本缺失用组", "", false, "Area", true, Indicators{AreaPlanted: true, AreaHarvested: true}},
		{"文本未命中用组", "Price", true, "Production", true, Indicators{Production: true}},
		{"组 yield", "", false, "Yield stats", true, Indicators{QuantityProduced: true}},
		{"组 quantity", "", false, "QUANTITY", true, Indicators{QuantityProduced: true}},
		{"文本命中不看组", "Area Planted", true, "Production", true, Indicators{AreaPlanted: true}},
		{"两者缺失", "", false, "", false, Indicators{}},
		{"两者未命中", "Price", true, "Market", true, Indicators{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text, tt.hasText, tt.group, tt.hasGroup); got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestIndicatorsHelpers(t *testing.T) {
	all := Indicators{true, true, true, true}
	if all.Count() != 4 || !all.Any() {
		t.Fatalf("count/any 错误")
	}
	if (Indicators{}).Any() {
		t.Fatalf("零值 Any 应为 false")
	}
	got := Indicators{AreaPlanted: true}.Or(Indicators{Production: true})
	if got != (Indicators{AreaPlanted: true, Production: true}) {
		t.Fatalf("Or = %+v", got)
	}
	labels := all.Labels()
	want := []string{"Area Planted", "Area Harvested", "Quantity Produced", "Production"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v", labels)
		}
	}
}
