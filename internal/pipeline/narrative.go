package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// Prompt context limits.
const (
	narrativeIngredientsN = 5
	narrativeEvidenceN    = 3
	narrativeRiskChars    = 500
)

// DailyReference is the fixed daily amount a nutrient is compared against.
type DailyReference struct {
	Key    string
	Amount float64
	Unit   string
}

// DailyReferences are the reference intakes for a ~2000 kcal diet.
var DailyReferences = map[string]DailyReference{
	"calories":        {"calories", 2000, "kcal"},
	"total_fat_g":     {"total_fat_g", 78, "g"},
	"saturated_fat_g": {"saturated_fat_g", 20, "g"},
	"sodium_mg":       {"sodium_mg", 2300, "mg"},
	"carbohydrates_g": {"carbohydrates_g", 275, "g"},
	"fiber_g":         {"fiber_g", 28, "g"},
	"sugars_g":        {"sugars_g", 50, "g"},
	"protein_g":       {"protein_g", 50, "g"},
	"potassium_mg":    {"potassium_mg", 4700, "mg"},
	"iron_mg":         {"iron_mg", 18, "mg"},
}

const nutritionEstimateNote = `NUTRITION DATA: Not available on this label.
When quantifying, use typical values for this kind of product and label every figure as an estimate (e.g. "~150 calories (estimated) = ~8% of your ~2000 daily needs").`

const narrativePrompt = `**STRICT OUTPUT FORMAT - NO EXCEPTIONS:**
You MUST include ALL 6 components below, in this order, with these exact headers.

You are an AI health co-pilot. Assume ~2000 calorie daily needs unless the health profile says otherwise.

CONTEXT:
Product: %[1]s
Key Ingredients: %[2]s
User Health Profile: %[3]s
Risk Analysis: %[4]s
Ingredient Details: %[5]s
Available Alternatives: %[6]s

%[7]s

**ANTI-JARGON RULES (CRITICAL):**
NEVER use terms like "mast cell degranulation", "3-MCPD esters", "cytokine release", "histamine pathways".
ALWAYS use plain words like "immune cells releasing chemicals", "palm oil processing byproducts", "inflammation signals", "allergy response".
TALK LIKE A HELPFUL FRIEND, NOT A SCIENTIST.

MANDATORY OUTPUT STRUCTURE:

Scanning your %[1]s...

**Quick Decision:** [Start with exactly one of: %[8]s. Then one specific action in plain English]

**Why This Matters To You:**
- **[Condition 1]**: [QUANTIFY with exact %% of daily needs using the nutrition data above]
- **[Condition 2]**: [Explain WHAT the ingredient IS in simple terms + regulatory fact]
- **[Condition 3]**: [Use a SIMPLE mechanism] (optional, 2-3 bullets total)

**Tradeoffs**: [One sentence: benefit vs risk in plain language]

**What I'm Unsure About**:
- **[Unknown 1]**: [Something this label does not tell us, never an invented risk]
- **[Unknown 2]**: [Another specific missing detail] (2-3 bullets total)

**Better Options**: %[9]s
%[10]s
Generate NOW. Sound like a smart, helpful friend - NOT a research paper.`

const betterOptionsSubstitute = `[SPECIFIC product brands with availability, one per line as "- Name (Why it's better: reason)". Example: "- Hippeas Chickpea Puffs (Why it's better: baked not fried, at Target/Whole Foods)"]`

const betterOptionsComplement = `[Start with "This is already a good choice." Then suggest complementary foods to pair it with rather than replacements, one per line as "- Name (Why it's better: reason)"]`

const wholeFoodFraming = `
WHOLE FOOD FRAMING: This product is a minimally processed whole food. Lean toward "Generally safe" or "OK in moderation", focus on portion size and pairing, and do not present it as something to replace.
`

const allergenFraming = `
ALLERGEN ALERT: The ingredients contain %s, which the user is allergic to. Say so plainly in the Quick Decision.
`

const reportedAllergyFraming = `
ALLERGIES: The user reports allergies to %s. Check every ingredient, including derived ones (flours, extracts, proteins, oils), against them. If any ingredient contains one, start with "Skip" and name it.
`

// NarrativeInput is everything the composer reads from earlier stages.
type NarrativeInput struct {
	Brand        string
	Ingredients  []string
	Nutrition    *model.NutritionFacts
	Profile      string
	Risk         string
	Evidence     []model.IngredientProfile
	Alternatives []string
	Constraints  model.Constraints
}

// NarrativeResult is the final answer plus the degraded paths taken.
type NarrativeResult struct {
	Text  string
	Flags []model.QualityFlag
}

// NarrativeComposer renders the six-section answer.
type NarrativeComposer struct {
	svc    reasoning.Service
	tables *Tables
}

// NewNarrativeComposer creates a composer.
func NewNarrativeComposer(svc reasoning.Service, tables *Tables) *NarrativeComposer {
	return &NarrativeComposer{svc: svc, tables: tables}
}

// Compose asks for the narrative and checks it against the section
// contract. A violating answer gets one repair prompt; if that still
// violates, the second answer is kept and flagged incomplete.
func (c *NarrativeComposer) Compose(ctx context.Context, in NarrativeInput) (NarrativeResult, error) {
	wholeFood := c.tables.IsWholeFood(in.Brand, in.Ingredients)
	conflicts := in.Constraints.ConflictsWith(in.Ingredients)
	permitted := PermittedDecisions(wholeFood, in.Constraints.Allergens)
	prompt := NarrativePrompt(in, wholeFood, conflicts, permitted)

	log := zap.L().With(zap.String("brand", in.Brand), zap.Bool("whole_food", wholeFood))

	text, err := c.svc.Invoke(ctx, prompt)
	if err != nil {
		return NarrativeResult{}, eris.Wrap(err, "narrative: invoke")
	}

	problems := ValidateNarrative(text, permitted)
	if len(problems) == 0 {
		return NarrativeResult{Text: text}, nil
	}

	log.Warn("narrative: answer breaks section contract, re-prompting", zap.Strings("problems", problems))
	flags := []model.QualityFlag{model.FlagNarrativeRetried}

	retry, err := c.svc.Invoke(ctx, repairPrompt(prompt, text, problems))
	if err != nil {
		log.Error("narrative: repair call failed, keeping first answer", zap.Error(err))
		return NarrativeResult{Text: text, Flags: append(flags, model.FlagNarrativeIncomplete)}, nil
	}

	if problems = ValidateNarrative(retry, permitted); len(problems) > 0 {
		log.Warn("narrative: repaired answer still incomplete", zap.Strings("problems", problems))
		flags = append(flags, model.FlagNarrativeIncomplete)
	}
	return NarrativeResult{Text: retry, Flags: flags}, nil
}

// PermittedDecisions narrows the quick-decision vocabulary. Once the user
// reports any allergy every decision is allowed, since only the reasoning
// service can tell whether an ingredient carries it. Otherwise whole foods
// may only be called safe or ok in moderation, and other products anything
// but Skip.
func PermittedDecisions(wholeFood bool, allergens []string) []model.Decision {
	switch {
	case len(allergens) > 0:
		return append([]model.Decision(nil), model.Decisions...)
	case wholeFood:
		return []model.Decision{model.DecisionSafe, model.DecisionModeration}
	default:
		return []model.Decision{model.DecisionSafe, model.DecisionModeration, model.DecisionNotIdeal}
	}
}

// NarrativePrompt renders the composer prompt.
func NarrativePrompt(in NarrativeInput, wholeFood bool, conflicts []string, permitted []model.Decision) string {
	ings := in.Ingredients
	if len(ings) > narrativeIngredientsN {
		ings = ings[:narrativeIngredientsN]
	}
	evidence := in.Evidence
	if len(evidence) > narrativeEvidenceN {
		evidence = evidence[:narrativeEvidenceN]
	}
	if evidence == nil {
		evidence = []model.IngredientProfile{}
	}
	evidenceJSON, _ := json.Marshal(evidence)
	alts := in.Alternatives
	if alts == nil {
		alts = []string{}
	}
	altsJSON, _ := json.Marshal(alts)

	names := make([]string, len(permitted))
	for i, d := range permitted {
		names[i] = strconv.Quote(string(d))
	}

	better := betterOptionsSubstitute
	framing := ""
	if wholeFood {
		better = betterOptionsComplement
		framing = wholeFoodFraming
	}
	switch {
	case len(conflicts) > 0:
		framing += fmt.Sprintf(allergenFraming, strings.Join(conflicts, ", "))
	case len(in.Constraints.Allergens) > 0:
		framing += fmt.Sprintf(reportedAllergyFraming, strings.Join(in.Constraints.Allergens, ", "))
	}

	return fmt.Sprintf(narrativePrompt,
		in.Brand,
		strings.Join(ings, ", "),
		in.Profile,
		truncateRunes(in.Risk, narrativeRiskChars),
		evidenceJSON,
		altsJSON,
		NutritionBreakdown(in.Nutrition),
		strings.Join(names, " / "),
		better,
		framing,
	)
}

// NutritionBreakdown states every present nutrient as a share of its daily
// reference and lists the absent ones, which may only be quoted as
// estimates. Nutrition without any numeric field asks for estimates only.
func NutritionBreakdown(n *model.NutritionFacts) string {
	var present, absent []model.Nutrient
	for _, nu := range n.Nutrients() {
		if nu.Quantity == nil {
			absent = append(absent, nu)
			continue
		}
		present = append(present, nu)
	}

	serving := ""
	if n != nil && n.ServingSize != nil {
		serving = strings.TrimSpace(*n.ServingSize)
	}

	if len(present) == 0 {
		if serving == "" {
			return nutritionEstimateNote
		}
		return nutritionEstimateNote + "\nThe label only states the serving size: " + serving + "."
	}

	var sb strings.Builder
	sb.WriteString("NUTRITION DATA (per serving, from the label):")
	if serving != "" {
		sb.WriteString("\n- Serving size: ")
		sb.WriteString(serving)
	}
	for _, nu := range present {
		ref := DailyReferences[nu.Key]
		pct := math.Round(nu.Quantity.Value / ref.Amount * 100)
		fmt.Fprintf(&sb, "\n- %s: %s %s = %d%% of the %s %s daily reference",
			nu.Label, formatAmount(nu.Quantity.Value), nu.Unit, int(pct), formatAmount(ref.Amount), ref.Unit)
	}
	sb.WriteString("\nUse these exact figures for the nutrients listed above.")

	if len(absent) > 0 {
		labels := make([]string, len(absent))
		for i, nu := range absent {
			labels[i] = nu.Label
		}
		sb.WriteString("\nNot on this label: ")
		sb.WriteString(strings.Join(labels, ", "))
		sb.WriteString(`. If you quantify any of these, use typical values for this kind of product and mark each such figure as an estimate (e.g. "~10g sugar (estimated)").`)
	}
	return sb.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func repairPrompt(prompt, previous string, problems []string) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nYOUR PREVIOUS ANSWER:\n")
	sb.WriteString(previous)
	sb.WriteString("\n\nThat answer broke the required format:\n")
	for _, p := range problems {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("Rewrite the COMPLETE answer with all 6 sections, in order, using the exact headers.")
	return sb.String()
}
