package model

import "strings"

// CategoryMethod records which detection tier produced a category.
type CategoryMethod string

const (
	CategoryMethodKeyword  CategoryMethod = "keyword"
	CategoryMethodAPI      CategoryMethod = "api"
	CategoryMethodFallback CategoryMethod = "fallback"
)

// DefaultCategory is used when neither the keyword table nor the product
// database yields a category.
const DefaultCategory = "snacks"

// Category is a product category with its provenance.
type Category struct {
	Label  string         `json:"label"`
	Method CategoryMethod `json:"method"`
}

// Constraints are the user restrictions recovered from free-text health info.
type Constraints struct {
	Allergens []string `json:"allergens,omitempty"`
	Diet      string   `json:"diet,omitempty"`
}

// IsZero reports whether no constraint was found.
func (c Constraints) IsZero() bool {
	return len(c.Allergens) == 0 && c.Diet == ""
}

// allergenSources maps an allergen to ingredient words that carry it.
var allergenSources = map[string][]string{
	"gluten":    {"wheat", "barley", "rye", "malt", "spelt", "semolina", "triticale"},
	"wheat":     {"semolina", "spelt", "durum"},
	"milk":      {"whey", "casein", "butter", "cream", "cheese", "lactose", "yogurt"},
	"dairy":     {"milk", "whey", "casein", "butter", "cream", "cheese", "lactose", "yogurt"},
	"lactose":   {"milk", "whey", "cream", "cheese"},
	"egg":       {"albumin", "mayonnaise"},
	"soy":       {"soya", "tofu", "edamame"},
	"peanut":    {"groundnut"},
	"tree nut":  {"almond", "cashew", "walnut", "pecan", "hazelnut", "pistachio", "macadamia", "brazil nut"},
	"nut":       {"almond", "cashew", "walnut", "pecan", "hazelnut", "pistachio", "macadamia"},
	"shellfish": {"shrimp", "prawn", "crab", "lobster", "crayfish"},
	"fish":      {"anchovy", "cod", "salmon", "tuna"},
	"sesame":    {"tahini"},
}

// allergenTerms returns the singular forms of allergen plus the ingredient
// words listed for it.
func allergenTerms(allergen string) []string {
	a := strings.ToLower(strings.TrimSpace(allergen))
	forms := []string{a}
	switch {
	case strings.HasSuffix(a, "ies"):
		forms = append(forms, strings.TrimSuffix(a, "ies")+"y")
	case strings.HasSuffix(a, "es"):
		forms = append(forms, strings.TrimSuffix(a, "es"), strings.TrimSuffix(a, "s"))
	case strings.HasSuffix(a, "s"):
		forms = append(forms, strings.TrimSuffix(a, "s"))
	}

	terms := append([]string(nil), forms...)
	for _, f := range forms {
		terms = append(terms, allergenSources[f]...)
	}
	return terms
}

// ConflictsWith returns the allergens found in any ingredient, matching
// singular and plural forms and the ingredient words known to carry them.
func (c Constraints) ConflictsWith(ingredients []string) []string {
	var hits []string
	for _, a := range c.Allergens {
		if hitsAny(allergenTerms(a), ingredients) {
			hits = append(hits, a)
		}
	}
	return hits
}

func hitsAny(terms, ingredients []string) bool {
	for _, ing := range ingredients {
		lower := strings.ToLower(ing)
		for _, t := range terms {
			if len(t) >= 3 && strings.Contains(lower, t) {
				return true
			}
		}
	}
	return false
}

// Decision is the one-line verdict vocabulary, ordered by severity.
type Decision string

const (
	DecisionSafe       Decision = "Generally safe"
	DecisionModeration Decision = "OK in moderation"
	DecisionNotIdeal   Decision = "Not ideal"
	DecisionSkip       Decision = "Skip"
)

// Decisions lists the vocabulary from least to most severe.
var Decisions = []Decision{DecisionSafe, DecisionModeration, DecisionNotIdeal, DecisionSkip}

// Severity returns the rank of d in Decisions, or -1.
func (d Decision) Severity() int {
	for i, v := range Decisions {
		if v == d {
			return i
		}
	}
	return -1
}
