package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// Alternatives limits.
const (
	maxAlternatives          = 3
	minAlternativeChars      = 10
	alternativesIngredientsN = 5
)

const alternativesPrompt = `You are a nutrition expert. Suggest 3 healthier alternative products for this item.

CURRENT PRODUCT:
Brand: %s
Category: %s
Top Ingredients: %s
%s
REQUIREMENTS:
1. Suggest 3 REAL, SPECIFIC product brands (not generic like "organic chips")
2. Each must be HEALTHIER than current product (lower sodium/sugar/fat OR higher protein/fiber)
3. Each must be WIDELY AVAILABLE in stores (Target, Whole Foods, Walmart, etc.)
4. DO NOT suggest the same brand as current product
5. If user has allergens, exclude products containing those allergens
6. If user follows a diet (vegan/vegetarian), suggest matching products

FORMAT (exactly like this):
Product Name 1 (Why it's better: specific reason)
Product Name 2 (Why it's better: specific reason)
Product Name 3 (Why it's better: specific reason)

Examples:
- Hippeas Chickpea Puffs (Why it's better: 4g protein vs 2g, baked not fried)
- Terra Veggie Chips (Why it's better: real vegetables, 30%% less sodium)
- Simply 7 Quinoa Chips (Why it's better: whole grains, no artificial flavors)`

// bulletChars are stripped from the start of each suggestion line.
const bulletChars = "-•*0123456789. "

// AlternativesRequest is the product context for suggestions.
type AlternativesRequest struct {
	Brand       string
	Category    string
	Ingredients []string
	Constraints model.Constraints
}

// AlternativesPrompt renders the suggestion prompt. Constraints appear only
// when present.
func AlternativesPrompt(req AlternativesRequest) string {
	ings := req.Ingredients
	if len(ings) > alternativesIngredientsN {
		ings = ings[:alternativesIngredientsN]
	}

	var constraints strings.Builder
	if len(req.Constraints.Allergens) > 0 {
		constraints.WriteString("\nUser Allergens to AVOID: ")
		constraints.WriteString(strings.Join(req.Constraints.Allergens, ", "))
	}
	if req.Constraints.Diet != "" {
		constraints.WriteString("\nUser Diet: ")
		constraints.WriteString(req.Constraints.Diet)
	}
	if constraints.Len() > 0 {
		constraints.WriteString("\n")
	}

	return fmt.Sprintf(alternativesPrompt, req.Brand, req.Category, strings.Join(ings, ", "), constraints.String())
}

// SuggestAlternatives asks for up to three healthier products. The bool
// reports whether the generic table was substituted.
func SuggestAlternatives(ctx context.Context, svc reasoning.Service, tables *Tables, req AlternativesRequest) ([]string, bool) {
	log := zap.L().With(zap.String("category", req.Category))

	text, err := svc.Invoke(ctx, AlternativesPrompt(req))
	if err != nil {
		log.Error("alternatives: suggestion call failed, using generic alternatives", zap.Error(err))
		return tables.GenericAlternatives(req.Category), true
	}

	alts := FilterAlternatives(text)
	if len(alts) == 0 {
		log.Warn("alternatives: no usable suggestions in reply, using generic alternatives")
		return tables.GenericAlternatives(req.Category), true
	}
	log.Info("alternatives: suggestions found", zap.Int("count", len(alts)))
	return alts, false
}

// FilterAlternatives keeps the first three suggestion lines of a reply.
// Blank lines, "#" comments and lines opening with "here" are dropped,
// bullets and numbering are stripped, and short leftovers are discarded.
func FilterAlternatives(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(strings.ToLower(line), "here") {
			continue
		}
		cleaned := strings.TrimLeft(line, bulletChars)
		if utf8.RuneCountInString(cleaned) <= minAlternativeChars {
			continue
		}
		out = append(out, cleaned)
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}
