package model

// NOVA processing classes.
const (
	NovaMinimal        = 1
	NovaCulinary       = 2
	NovaProcessed      = 3
	NovaUltraProcessed = 4
)

// NeutralNova is recorded whenever the processing class is unknown. It is a
// shrug value, not a claim that the ingredient is processed.
const NeutralNova = NovaProcessed

// IngredientProfile is the per-ingredient evidence summary.
type IngredientProfile struct {
	Name          string `json:"name"`
	Manufacturing string `json:"manufacturing"`
	RegulatoryGap string `json:"regulatory_gap"`
	HealthRisks   string `json:"health_risks"`
	NovaScore     int    `json:"nova_score"`
}

// UnknownProfile is the uniform profile used when evidence could not be
// gathered. reason is appended to the health-risk text when non-empty.
func UnknownProfile(name, reason string) IngredientProfile {
	risks := "Data unavailable"
	if reason != "" {
		risks += " " + reason
	}
	return IngredientProfile{
		Name:          name,
		Manufacturing: "Unknown",
		RegulatoryGap: "No major regulatory restrictions identified",
		HealthRisks:   risks,
		NovaScore:     NeutralNova,
	}
}

// ValidNova reports whether score is a NOVA class.
func ValidNova(score int) bool {
	return score >= NovaMinimal && score <= NovaUltraProcessed
}
