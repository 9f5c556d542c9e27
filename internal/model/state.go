package model

import (
	"slices"

	"github.com/rotisserie/eris"
)

// ErrKeyOverwrite is returned when a delta writes a key that an earlier stage
// already populated.
var ErrKeyOverwrite = eris.New("state: key already written")

// State is the record threaded through the five stages. Inputs are set before
// the first stage and never change; every other key is written exactly once.
type State struct {
	ImagePath     string `json:"image_path"`
	UserRawHealth string `json:"user_raw_health"`

	// Written by the label extractor.
	BrandName   string          `json:"brand_name,omitempty"`
	Ingredients []string        `json:"ingredients_list"`
	Nutrition   *NutritionFacts `json:"nutrition_facts"`

	// Written by the health profiler.
	ClinicalProfile string `json:"user_clinical_profile,omitempty"`

	// Written by the evidence researcher.
	KnowledgeBase []IngredientProfile `json:"ingredient_knowledge_base"`
	Alternatives  []string            `json:"product_alternatives"`
	Category      *Category           `json:"product_category,omitempty"`

	// Written by the risk analyzer.
	RiskAnalysis string `json:"clinical_risk_analysis,omitempty"`

	// Written by the narrative composer.
	FinalInsight string `json:"final_conversational_insight,omitempty"`

	QualityFlags []QualityFlag `json:"quality_flags,omitempty"`

	written map[string]bool
}

// NewState creates the initial state from caller input.
func NewState(in Input) State {
	return State{
		ImagePath:     in.ImagePath,
		UserRawHealth: in.UserRawHealth,
	}
}

// Delta is the set of keys a stage produces. Nil fields are left untouched.
// Input keys have no field here so a stage cannot rewrite them.
type Delta struct {
	BrandName       *string
	Ingredients     []string
	SetIngredients  bool
	Nutrition       *NutritionFacts
	SetNutrition    bool
	ClinicalProfile *string
	KnowledgeBase   []IngredientProfile
	SetKnowledge    bool
	Alternatives    []string
	SetAlternatives bool
	Category        *Category
	RiskAnalysis    *string
	FinalInsight    *string
	Flags           []QualityFlag
}

// Has reports whether key has been written by an earlier delta.
func (s State) Has(key string) bool {
	return s.written[key]
}

// Apply returns a copy of s with d merged in. The receiver is not modified.
func (s State) Apply(d Delta) (State, error) {
	next := s.clone()

	set := func(key string) error {
		if next.written[key] {
			return eris.Wrapf(ErrKeyOverwrite, "state: %s", key)
		}
		next.written[key] = true
		return nil
	}

	if d.BrandName != nil {
		if err := set("brand_name"); err != nil {
			return s, err
		}
		next.BrandName = *d.BrandName
	}
	if d.SetIngredients {
		if err := set("ingredients_list"); err != nil {
			return s, err
		}
		next.Ingredients = cloneOrEmpty(d.Ingredients)
	}
	if d.SetNutrition {
		if err := set("nutrition_facts"); err != nil {
			return s, err
		}
		next.Nutrition = d.Nutrition.Clone()
	}
	if d.ClinicalProfile != nil {
		if err := set("user_clinical_profile"); err != nil {
			return s, err
		}
		next.ClinicalProfile = *d.ClinicalProfile
	}
	if d.SetKnowledge {
		if err := set("ingredient_knowledge_base"); err != nil {
			return s, err
		}
		next.KnowledgeBase = cloneOrEmpty(d.KnowledgeBase)
	}
	if d.SetAlternatives {
		if err := set("product_alternatives"); err != nil {
			return s, err
		}
		next.Alternatives = cloneOrEmpty(d.Alternatives)
	}
	if d.Category != nil {
		if err := set("product_category"); err != nil {
			return s, err
		}
		c := *d.Category
		next.Category = &c
	}
	if d.RiskAnalysis != nil {
		if err := set("clinical_risk_analysis"); err != nil {
			return s, err
		}
		next.RiskAnalysis = *d.RiskAnalysis
	}
	if d.FinalInsight != nil {
		if err := set("final_conversational_insight"); err != nil {
			return s, err
		}
		next.FinalInsight = *d.FinalInsight
	}

	if len(d.Flags) > 0 {
		flags := append(next.QualityFlags, d.Flags...)
		slices.Sort(flags)
		next.QualityFlags = slices.Compact(flags)
	}

	return next, nil
}

func (s State) clone() State {
	c := s
	c.Ingredients = slices.Clone(s.Ingredients)
	c.KnowledgeBase = slices.Clone(s.KnowledgeBase)
	c.Alternatives = slices.Clone(s.Alternatives)
	c.QualityFlags = slices.Clone(s.QualityFlags)
	c.Nutrition = s.Nutrition.Clone()
	if s.Category != nil {
		cat := *s.Category
		c.Category = &cat
	}
	c.written = make(map[string]bool, len(s.written)+1)
	for k, v := range s.written {
		c.written[k] = v
	}
	return c
}

func cloneOrEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
