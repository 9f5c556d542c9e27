package pipeline

import (
	"strings"

	"github.com/sells-group/label-copilot/internal/model"
)

const allergiesMarker = "allergies:"

// noAllergy lists the answers that mean no allergy was reported.
var noAllergy = map[string]bool{"none": true, "no": true, "n/a": true, "na": true, "nil": true, "no known allergies": true}

// ExtractConstraints recovers allergens and a diet label from free-text
// health information. The allergen list is the text after the last
// "Allergies:" marker up to the next period, split on commas. Absent markers
// and answers like "none" yield no allergens.
func ExtractConstraints(rawHealth string) model.Constraints {
	var c model.Constraints
	lower := strings.ToLower(rawHealth)
	if lower == "" {
		return c
	}

	if i := strings.LastIndex(lower, allergiesMarker); i >= 0 {
		part := lower[i+len(allergiesMarker):]
		if end := strings.Index(part, "."); end >= 0 {
			part = part[:end]
		}
		for _, a := range strings.Split(part, ",") {
			if a = strings.TrimSpace(a); a != "" && !noAllergy[a] {
				c.Allergens = append(c.Allergens, a)
			}
		}
	}

	switch {
	case strings.Contains(lower, "vegan"):
		c.Diet = "vegan"
	case strings.Contains(lower, "vegetarian"):
		c.Diet = "vegetarian"
	}
	return c
}
