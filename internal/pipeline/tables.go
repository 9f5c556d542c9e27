package pipeline

import (
	_ "embed"
	"slices"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// Tables holds the keyword tables used by category detection, the generic
// alternatives fallback and the whole-food heuristic.
type Tables struct {
	Categories   []CategoryKeywords  `yaml:"categories"`
	Alternatives map[string][]string `yaml:"generic_alternatives"`
	WholeFood    WholeFoodTerms      `yaml:"whole_food"`
}

// CategoryKeywords maps a category to the brand keywords that select it.
type CategoryKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// WholeFoodTerms drives the natural-whole-food heuristic.
type WholeFoodTerms struct {
	Foods           []string `yaml:"foods"`
	NaturalMarkers  []string `yaml:"natural_markers"`
	AdditiveMarkers []string `yaml:"additive_markers"`
}

// defaultAlternativesKey is the generic_alternatives entry used for
// categories without their own list.
const defaultAlternativesKey = "default"

// LoadTables parses a tables document and case-folds every keyword.
func LoadTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse tables")
	}
	if len(t.Categories) == 0 {
		return nil, eris.New("pipeline: tables define no categories")
	}
	if len(t.Alternatives[defaultAlternativesKey]) == 0 {
		return nil, eris.New("pipeline: tables define no default alternatives")
	}

	for i := range t.Categories {
		t.Categories[i].Keywords = foldAll(t.Categories[i].Keywords)
	}
	t.WholeFood.Foods = foldAll(t.WholeFood.Foods)
	t.WholeFood.NaturalMarkers = foldAll(t.WholeFood.NaturalMarkers)
	t.WholeFood.AdditiveMarkers = foldAll(t.WholeFood.AdditiveMarkers)
	return &t, nil
}

// DefaultTables returns the tables embedded in the binary.
func DefaultTables() (*Tables, error) {
	return LoadTables(defaultTablesYAML)
}

// MatchCategory returns the first category with a keyword contained in brand.
func (t *Tables) MatchCategory(brand string) (string, bool) {
	folded := fold(brand)
	if folded == "" {
		return "", false
	}
	for _, c := range t.Categories {
		for _, kw := range c.Keywords {
			if kw != "" && strings.Contains(folded, kw) {
				return c.Name, true
			}
		}
	}
	return "", false
}

// GenericAlternatives returns the fixed suggestions for category.
func (t *Tables) GenericAlternatives(category string) []string {
	if alts, ok := t.Alternatives[category]; ok && len(alts) > 0 {
		return slices.Clone(alts)
	}
	return slices.Clone(t.Alternatives[defaultAlternativesKey])
}

// IsWholeFood reports whether the product should be framed as a minimally
// processed whole food. It holds when every ingredient is a known whole food
// or when the brand carries a natural marker, at least one ingredient is a
// whole food and none carries an additive marker.
func (t *Tables) IsWholeFood(brand string, ingredients []string) bool {
	if len(ingredients) == 0 {
		return false
	}

	whole, additive := 0, 0
	for _, ing := range ingredients {
		f := fold(ing)
		if containsAny(f, t.WholeFood.AdditiveMarkers) {
			additive++
			continue
		}
		if containsAny(f, t.WholeFood.Foods) {
			whole++
		}
	}
	if whole == len(ingredients) {
		return true
	}
	if additive > 0 || whole == 0 {
		return false
	}

	for _, word := range words(fold(brand)) {
		if slices.Contains(t.WholeFood.NaturalMarkers, word) {
			return true
		}
	}
	return false
}

// fold case-folds s for caseless matching. A Caser is not safe for
// concurrent use so one is made per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
