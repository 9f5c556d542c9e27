package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// Context fragment limits, in characters.
const (
	wikipediaContextChars     = 200
	openFoodFactsContextChars = 100
)

const evidencePrompt = `You are a clinical nutrition and food safety researcher. Analyze the following ingredients and return a JSON array of ingredient profiles.

INGREDIENTS TO ANALYZE (with available scientific context):
%s

For EACH ingredient, provide:
1. name: Standardized ingredient name
2. manufacturing: Production origin (natural/synthetic/fermented/ultra-processed)
3. regulatory_gap: Regulatory differences or bans across regions (research and determine actual status)
4. health_risks: Known or suspected health effects based on evidence
5. nova_score: NOVA classification (1=minimally processed, 4=ultra-processed)

Return as a JSON array with exactly %d objects, one for each ingredient listed above, in the same order.
Use the provided scientific context from Wikipedia and OpenFoodFacts, plus your knowledge of regulatory databases to assess each ingredient.`

// evidenceFallbackReason is appended to every profile's health risks when
// the batch falls back.
const evidenceFallbackReason = "due to API error"

// EvidenceResearcher builds one evidence profile per ingredient.
type EvidenceResearcher struct {
	svc         reasoning.Service
	lookups     *Lookups
	concurrency int
}

// NewEvidenceResearcher creates a researcher. concurrency bounds the
// per-ingredient context lookups in flight.
func NewEvidenceResearcher(svc reasoning.Service, lookups *Lookups, concurrency int) *EvidenceResearcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &EvidenceResearcher{svc: svc, lookups: lookups, concurrency: concurrency}
}

// Research returns exactly one profile per ingredient in input order. The
// bool reports whether the uniform fallback was used.
func (r *EvidenceResearcher) Research(ctx context.Context, ingredients []string) ([]model.IngredientProfile, bool) {
	if len(ingredients) == 0 {
		return []model.IngredientProfile{}, false
	}

	contexts := r.gatherContext(ctx, ingredients)
	prompt := fmt.Sprintf(evidencePrompt, strings.Join(contexts, "\n"), len(ingredients))

	log := zap.L().With(zap.Int("ingredients", len(ingredients)))
	log.Info("research: batch analyzing ingredients")

	text, err := r.svc.Invoke(ctx, prompt)
	if err != nil {
		log.Error("research: batch analysis failed, using fallback profiles", zap.Error(err))
		return fallbackProfiles(ingredients), true
	}

	profiles, err := parseProfiles(text, ingredients)
	if err != nil {
		log.Error("research: batch reply unusable, using fallback profiles", zap.Error(err))
		return fallbackProfiles(ingredients), true
	}
	return profiles, false
}

// gatherContext fetches the context block for every ingredient concurrently.
// Each goroutine owns one slot so order is preserved.
func (r *EvidenceResearcher) gatherContext(ctx context.Context, ingredients []string) []string {
	out := make([]string, len(ingredients))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ing := range ingredients {
		g.Go(func() error {
			out[i] = r.ingredientContext(gCtx, ing)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *EvidenceResearcher) ingredientContext(ctx context.Context, ing string) string {
	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(ing)

	wiki := r.lookups.Encyclopedia(ctx, ing)
	if wiki.Text != "" {
		sb.WriteString("\n  Wikipedia: ")
		sb.WriteString(truncateRunes(wiki.Text, wikipediaContextChars))
		sb.WriteString("...")
	} else {
		zap.L().Debug("research: no encyclopedia context",
			zap.String("ingredient", ing),
			zap.String("reason", wiki.Reason),
		)
	}

	if product, reason := r.lookups.FirstProduct(ctx, ing, 0); product != nil && len(product.Raw) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, product.Raw); err == nil {
			sb.WriteString("\n  OpenFoodFacts: ")
			sb.WriteString(truncateRunes(compact.String(), openFoodFactsContextChars))
			sb.WriteString("...")
		}
	} else {
		zap.L().Debug("research: no product database context",
			zap.String("ingredient", ing),
			zap.String("reason", reason),
		)
	}
	return sb.String()
}

// rawProfile tolerates missing fields and NOVA scores sent as strings.
type rawProfile struct {
	Name          *string         `json:"name"`
	Manufacturing *string         `json:"manufacturing"`
	RegulatoryGap *string         `json:"regulatory_gap"`
	HealthRisks   *string         `json:"health_risks"`
	NovaScore     json.RawMessage `json:"nova_score"`
}

// parseProfiles maps the reply array onto ingredients by index. A reply of
// the wrong length is rejected so the count invariant holds.
func parseProfiles(text string, ingredients []string) ([]model.IngredientProfile, error) {
	var elems []json.RawMessage
	if err := reasoning.DecodeStructured(text, &elems); err != nil {
		return nil, err
	}
	if len(elems) != len(ingredients) {
		return nil, eris.Errorf("research: got %d profiles for %d ingredients", len(elems), len(ingredients))
	}

	profiles := make([]model.IngredientProfile, len(ingredients))
	for i, elem := range elems {
		var rp rawProfile
		if err := json.Unmarshal(elem, &rp); err != nil {
			zap.L().Warn("research: profile unparseable, using unknown profile",
				zap.Int("index", i),
				zap.String("ingredient", ingredients[i]),
				zap.Error(err),
			)
			profiles[i] = model.UnknownProfile(ingredients[i], "")
			continue
		}
		profiles[i] = model.IngredientProfile{
			Name:          orDefault(rp.Name, ingredients[i]),
			Manufacturing: orDefault(rp.Manufacturing, "Unknown"),
			RegulatoryGap: orDefault(rp.RegulatoryGap, "No data"),
			HealthRisks:   orDefault(rp.HealthRisks, "No data"),
			NovaScore:     parseNova(rp.NovaScore),
		}
	}
	return profiles, nil
}

func fallbackProfiles(ingredients []string) []model.IngredientProfile {
	out := make([]model.IngredientProfile, len(ingredients))
	for i, ing := range ingredients {
		out[i] = model.UnknownProfile(ing, evidenceFallbackReason)
	}
	return out
}

func orDefault(v *string, def string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	return strings.TrimSpace(*v)
}

// parseNova accepts 2, 2.0 or "2" and maps anything outside 1-4 to the
// neutral score.
func parseNova(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return model.NeutralNova
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) || !model.ValidNova(int(f)) {
		return model.NeutralNova
	}
	return int(f)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
