package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/imagestore"
	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/ocr"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// Extractor strategies.
const (
	StrategyVision = "vision"
	StrategyOCR    = "ocr"
)

const labelVisionPrompt = `Look at this food label image carefully and extract ALL information:

1. Product name and brand
2. ALL nutrition facts from the Nutrition Facts table (per serving):
   - Serving size (e.g., "50g", "1 cup")
   - Calories
   - Total Fat (g)
   - Saturated Fat (g)
   - Sodium (mg)
   - Total Carbohydrates (g)
   - Dietary Fiber (g)
   - Sugars (g)
   - Protein (g)
   - Potassium (mg) and Iron (mg) if shown
3. Complete ingredients list (in order)

Return as JSON in this EXACT format:
{
  "brand": "Product Brand Name",
  "ingredients": ["ingredient1", "ingredient2"],
  "nutrition": {
    "serving_size": "50g",
    "calories": 264,
    "total_fat_g": 16.0,
    "saturated_fat_g": 5.0,
    "sodium_mg": 192,
    "carbohydrates_g": 25.0,
    "fiber_g": 1.0,
    "sugars_g": 8.0,
    "protein_g": 5.0
  }
}

IMPORTANT:
- If you can SEE the nutrition table, extract ALL values
- Use null for any value that is not printed on the label, never 0
- Set "nutrition" to null if there is no nutrition table
- Extract actual numbers from the table, don't estimate`

const labelReparsePrompt = `Extract brand, ingredients, and nutrition facts from this text:
%s`

const labelOCRPrompt = `The following text was read from a packaged-food label by OCR. It may contain line-break noise and misread characters.
Extract the brand, the ordered ingredient list and the nutrition facts table.

OCR TEXT:
%s`

// labelSchema constrains structured label extraction.
var labelSchema = reasoning.Schema{
	Name:        "label_extraction",
	Description: "brand, ordered ingredients and nutrition facts from a food label",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"brand": map[string]any{
				"type":        "string",
				"description": "Primary brand or manufacturer name as printed on the product label",
			},
			"ingredients": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ordered list of ingredients exactly as declared on the label, excluding quantities, addresses, claims, or marketing text",
			},
			"nutrition": map[string]any{
				"type":        []string{"object", "null"},
				"description": "Nutrition facts from the nutrition table if visible on the label; omit or null fields that are not printed",
				"properties": map[string]any{
					"serving_size":    map[string]any{"type": []string{"string", "null"}},
					"calories":        map[string]any{"type": []string{"number", "null"}},
					"total_fat_g":     map[string]any{"type": []string{"number", "null"}},
					"saturated_fat_g": map[string]any{"type": []string{"number", "null"}},
					"sodium_mg":       map[string]any{"type": []string{"number", "null"}},
					"carbohydrates_g": map[string]any{"type": []string{"number", "null"}},
					"fiber_g":         map[string]any{"type": []string{"number", "null"}},
					"sugars_g":        map[string]any{"type": []string{"number", "null"}},
					"protein_g":       map[string]any{"type": []string{"number", "null"}},
					"potassium_mg":    map[string]any{"type": []string{"number", "null"}},
					"iron_mg":         map[string]any{"type": []string{"number", "null"}},
				},
			},
		},
		"required": []string{"brand", "ingredients"},
	},
}

// LabelResult is the label extractor's output plus the degraded paths taken.
type LabelResult struct {
	Label model.LabelData
	Flags []model.QualityFlag
}

// rawLabel keeps nutrition undecoded so a bad nutrition table does not cost
// the brand and ingredients parsed from the same reply.
type rawLabel struct {
	Brand       string          `json:"brand"`
	Ingredients []string        `json:"ingredients"`
	Nutrition   json.RawMessage `json:"nutrition"`
}

// LabelExtractor reads brand, ingredients and nutrition from a label image.
type LabelExtractor struct {
	strategy string
	images   imagestore.Store
	svc      reasoning.Service
	ocr      ocr.Extractor
}

// NewLabelExtractor creates an extractor for the given strategy. ocrExt is
// only used by the ocr strategy.
func NewLabelExtractor(strategy string, images imagestore.Store, svc reasoning.Service, ocrExt ocr.Extractor) *LabelExtractor {
	if strategy == "" {
		strategy = StrategyVision
	}
	return &LabelExtractor{strategy: strategy, images: images, svc: svc, ocr: ocrExt}
}

// Extract never fails: unreadable images and unparseable replies yield the
// fallback label.
func (e *LabelExtractor) Extract(ctx context.Context, path string) LabelResult {
	log := zap.L().With(zap.String("image_path", path), zap.String("strategy", e.strategy))

	img, err := e.images.Open(ctx, path)
	if err != nil {
		var imgErr *imagestore.ImageError
		reason := "unknown"
		if errors.As(err, &imgErr) {
			reason = string(imgErr.Reason)
		}
		log.Warn("extract: image unavailable, using fallback label",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return fallbackResult()
	}

	var (
		raw   rawLabel
		flags []model.QualityFlag
		ok    bool
	)
	switch e.strategy {
	case StrategyOCR:
		raw, ok = e.fromOCR(ctx, img, log)
	default:
		raw, flags, ok = e.fromVision(ctx, img, log)
	}
	if !ok {
		return fallbackResult()
	}

	res := buildLabel(raw, log)
	res.Flags = append(res.Flags, flags...)
	log.Info("extract: label read",
		zap.String("brand", res.Label.Brand),
		zap.Int("ingredients", len(res.Label.Ingredients)),
		zap.Bool("has_nutrition", res.Label.Nutrition != nil),
	)
	return res
}

func (e *LabelExtractor) fromVision(ctx context.Context, img reasoning.Image, log *zap.Logger) (rawLabel, []model.QualityFlag, bool) {
	text, err := e.svc.InvokeVision(ctx, labelVisionPrompt, img)
	if err != nil {
		log.Warn("extract: vision call failed, using fallback label", zap.Error(err))
		return rawLabel{}, nil, false
	}

	raw, err := parseLabelJSON(text)
	if err == nil {
		return raw, nil, true
	}
	log.Warn("extract: vision reply not parseable, retrying as structured", zap.Error(err))

	raw = rawLabel{}
	if err := e.svc.InvokeStructured(ctx, fmt.Sprintf(labelReparsePrompt, text), labelSchema, &raw); err != nil {
		log.Warn("extract: second-chance parse failed, using fallback label", zap.Error(err))
		return rawLabel{}, nil, false
	}
	return raw, []model.QualityFlag{model.FlagLabelSecondChance}, true
}

func (e *LabelExtractor) fromOCR(ctx context.Context, img reasoning.Image, log *zap.Logger) (rawLabel, bool) {
	if e.ocr == nil {
		log.Warn("extract: no OCR service configured, using fallback label")
		return rawLabel{}, false
	}
	text, err := e.ocr.ExtractText(ctx, img)
	if err != nil {
		log.Warn("extract: OCR failed, using fallback label", zap.Error(err))
		return rawLabel{}, false
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("extract: OCR found no text, using fallback label")
		return rawLabel{}, false
	}

	var raw rawLabel
	if err := e.svc.InvokeStructured(ctx, fmt.Sprintf(labelOCRPrompt, text), labelSchema, &raw); err != nil {
		log.Warn("extract: structured extraction failed, using fallback label", zap.Error(err))
		return rawLabel{}, false
	}
	return raw, true
}

// parseLabelJSON locates the JSON object in a possibly fenced or narrated
// reply and decodes it.
func parseLabelJSON(text string) (rawLabel, error) {
	var raw rawLabel
	err := reasoning.DecodeStructured(text, &raw)
	return raw, err
}

func buildLabel(raw rawLabel, log *zap.Logger) LabelResult {
	label := model.LabelData{
		Brand:       strings.TrimSpace(raw.Brand),
		Ingredients: model.CleanIngredients(raw.Ingredients),
	}
	if label.Brand == "" {
		label.Brand = model.UnknownBrand
	}

	var flags []model.QualityFlag
	nutrition, err := model.ParseNutrition(raw.Nutrition)
	if err != nil {
		log.Warn("extract: nutrition unparseable, dropping it", zap.Error(err))
		flags = append(flags, model.FlagNutritionDropped)
	} else {
		label.Nutrition = nutrition
	}
	return LabelResult{Label: label, Flags: flags}
}

func fallbackResult() LabelResult {
	return LabelResult{
		Label: model.FallbackLabel(),
		Flags: []model.QualityFlag{model.FlagLabelFallback},
	}
}

// Delta converts the extraction into the state keys it owns.
func (r LabelResult) Delta() model.Delta {
	return model.Delta{
		BrandName:      model.StringPtr(r.Label.Brand),
		Ingredients:    r.Label.Ingredients,
		SetIngredients: true,
		Nutrition:      r.Label.Nutrition,
		SetNutrition:   true,
		Flags:          r.Flags,
	}
}
