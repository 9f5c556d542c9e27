package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// UnknownBrand is the brand recorded when the label could not be read.
const UnknownBrand = "Unknown"

// Quantity is a nutrient amount as printed on a label. Labels report either a
// bare number (264) or a number with a unit ("16g", "<1 g"); Raw keeps the
// printed text and Value the leading number.
type Quantity struct {
	Value float64 `json:"value"`
	Raw   string  `json:"raw,omitempty"`
}

// UnmarshalJSON accepts a JSON number or a string with a leading number.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return eris.New("quantity: empty value")
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "quantity: decode string")
		}
		v, ok := leadingNumber(s)
		if !ok {
			return eris.Errorf("quantity: no number in %q", s)
		}
		q.Value = v
		q.Raw = strings.TrimSpace(s)
		return nil
	}

	// Support the {"value":..,"raw":..} shape we marshal to.
	if data[0] == '{' {
		type plain Quantity
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return eris.Wrap(err, "quantity: decode object")
		}
		*q = Quantity(p)
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return eris.Wrapf(err, "quantity: parse %s", string(data))
	}
	q.Value = v
	q.Raw = ""
	return nil
}

// leadingNumber extracts the first decimal number in s, ignoring a leading
// comparison marker such as "<" or "~".
func leadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	start := strings.IndexFunc(s, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && (s[end] == '.' || s[end] == ',' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	num := strings.TrimRight(s[start:end], ".,")
	if i := strings.LastIndex(num, ","); i >= 0 {
		// "1,200" is a thousands separator, "0,5" a decimal comma.
		if strings.Contains(num, ".") || len(num)-i-1 == 3 {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.ReplaceAll(num, ",", ".")
		}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NutritionFacts holds per-serving values from the nutrition table. A nil
// field means the label does not show it; it is never implicitly zero.
type NutritionFacts struct {
	ServingSize   *string   `json:"serving_size,omitempty"`
	Calories      *Quantity `json:"calories,omitempty"`
	TotalFatG     *Quantity `json:"total_fat_g,omitempty"`
	SaturatedFatG *Quantity `json:"saturated_fat_g,omitempty"`
	SodiumMg      *Quantity `json:"sodium_mg,omitempty"`
	CarbsG        *Quantity `json:"carbohydrates_g,omitempty"`
	FiberG        *Quantity `json:"fiber_g,omitempty"`
	SugarsG       *Quantity `json:"sugars_g,omitempty"`
	ProteinG      *Quantity `json:"protein_g,omitempty"`
	PotassiumMg   *Quantity `json:"potassium_mg,omitempty"`
	IronMg        *Quantity `json:"iron_mg,omitempty"`
}

// Nutrient pairs a label field name with its value.
type Nutrient struct {
	Key      string
	Label    string
	Unit     string
	Quantity *Quantity
}

// Nutrients lists every numeric field in label order.
func (n *NutritionFacts) Nutrients() []Nutrient {
	if n == nil {
		return nil
	}
	return []Nutrient{
		{"calories", "Calories", "kcal", n.Calories},
		{"total_fat_g", "Total fat", "g", n.TotalFatG},
		{"saturated_fat_g", "Saturated fat", "g", n.SaturatedFatG},
		{"sodium_mg", "Sodium", "mg", n.SodiumMg},
		{"carbohydrates_g", "Carbohydrates", "g", n.CarbsG},
		{"fiber_g", "Fiber", "g", n.FiberG},
		{"sugars_g", "Sugars", "g", n.SugarsG},
		{"protein_g", "Protein", "g", n.ProteinG},
		{"potassium_mg", "Potassium", "mg", n.PotassiumMg},
		{"iron_mg", "Iron", "mg", n.IronMg},
	}
}

// Empty reports whether no field is present.
func (n *NutritionFacts) Empty() bool {
	if n == nil {
		return true
	}
	if n.ServingSize != nil && strings.TrimSpace(*n.ServingSize) != "" {
		return false
	}
	for _, nu := range n.Nutrients() {
		if nu.Quantity != nil {
			return false
		}
	}
	return true
}

// Normalize returns nil when no field is present, otherwise n.
func (n *NutritionFacts) Normalize() *NutritionFacts {
	if n.Empty() {
		return nil
	}
	return n
}

// Clone returns a deep copy.
func (n *NutritionFacts) Clone() *NutritionFacts {
	if n == nil {
		return nil
	}
	c := *n
	cp := func(q *Quantity) *Quantity {
		if q == nil {
			return nil
		}
		v := *q
		return &v
	}
	if n.ServingSize != nil {
		s := *n.ServingSize
		c.ServingSize = &s
	}
	c.Calories = cp(n.Calories)
	c.TotalFatG = cp(n.TotalFatG)
	c.SaturatedFatG = cp(n.SaturatedFatG)
	c.SodiumMg = cp(n.SodiumMg)
	c.CarbsG = cp(n.CarbsG)
	c.FiberG = cp(n.FiberG)
	c.SugarsG = cp(n.SugarsG)
	c.ProteinG = cp(n.ProteinG)
	c.PotassiumMg = cp(n.PotassiumMg)
	c.IronMg = cp(n.IronMg)
	return &c
}

// ParseNutrition decodes a nutrition object. JSON null, an empty object or an
// object with only null fields yields (nil, nil).
func ParseNutrition(raw json.RawMessage) (*NutritionFacts, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var n NutritionFacts
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, eris.Wrap(err, "nutrition: decode")
	}
	return n.Normalize(), nil
}

// LabelData is the label extractor's output contract.
type LabelData struct {
	Brand       string          `json:"brand"`
	Ingredients []string        `json:"ingredients"`
	Nutrition   *NutritionFacts `json:"nutrition"`
}

// FallbackLabel is returned whenever the label cannot be read.
func FallbackLabel() LabelData {
	return LabelData{Brand: UnknownBrand, Ingredients: []string{}}
}

// CleanIngredients trims entries and drops blanks, keeping order and
// duplicates.
func CleanIngredients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ing := range in {
		ing = strings.TrimSpace(ing)
		if ing == "" {
			continue
		}
		out = append(out, ing)
	}
	return out
}
