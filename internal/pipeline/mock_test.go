package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/internal/reasoning"
	"github.com/sells-group/label-copilot/pkg/openfoodfacts"
	"github.com/sells-group/label-copilot/pkg/wikipedia"
)

// --- Reasoning Mock ---

type mockReasoning struct {
	mock.Mock
}

func (m *mockReasoning) Invoke(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// InvokeStructured decodes the first return value (a JSON string) into out.
func (m *mockReasoning) InvokeStructured(ctx context.Context, prompt string, schema reasoning.Schema, out any) error {
	args := m.Called(ctx, prompt, schema)
	if err := args.Error(1); err != nil {
		return err
	}
	return reasoning.DecodeStructured(args.String(0), out)
}

func (m *mockReasoning) InvokeVision(ctx context.Context, prompt string, img reasoning.Image) (string, error) {
	args := m.Called(ctx, prompt, img)
	return args.String(0), args.Error(1)
}

// promptWith matches prompts containing every fragment.
func promptWith(fragments ...string) any {
	return mock.MatchedBy(func(p string) bool {
		for _, f := range fragments {
			if !strings.Contains(p, f) {
				return false
			}
		}
		return true
	})
}

// Prompt markers for each reasoning call.
const (
	markProfile      = "Clinical Health Profiler"
	markEvidence     = "clinical nutrition and food safety researcher"
	markAlternatives = "Suggest 3 healthier alternative"
	markRisk         = "Clinical Reasoning Engine"
	markNarrative    = "STRICT OUTPUT FORMAT"
	markRepair       = "YOUR PREVIOUS ANSWER"
)

// --- Image Store Mock ---

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) Open(ctx context.Context, path string) (reasoning.Image, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(reasoning.Image), args.Error(1)
}

// --- OCR Mock ---

type mockOCR struct {
	mock.Mock
}

func (m *mockOCR) ExtractText(ctx context.Context, img reasoning.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

// --- Wikipedia Mock ---

type mockWikipedia struct {
	mock.Mock
}

func (m *mockWikipedia) Fetch(ctx context.Context, term string) (*wikipedia.Article, error) {
	args := m.Called(ctx, term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wikipedia.Article), args.Error(1)
}

// --- Open Food Facts Mock ---

type mockOpenFoodFacts struct {
	mock.Mock
}

func (m *mockOpenFoodFacts) Search(ctx context.Context, req openfoodfacts.SearchRequest) (*openfoodfacts.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openfoodfacts.SearchResponse), args.Error(1)
}

func product(raw string) *openfoodfacts.SearchResponse {
	var p openfoodfacts.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		panic(err)
	}
	p.Raw = json.RawMessage(raw)
	return &openfoodfacts.SearchResponse{Count: 1, Products: []openfoodfacts.Product{p}}
}

// --- Deterministic stub ---

var objectCountRe = regexp.MustCompile(`exactly (\d+) objects`)

// stubReasoning answers every stage from the prompt alone, so identical
// inputs always produce identical replies.
type stubReasoning struct{}

func (stubReasoning) Invoke(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, markProfile):
		return "Hypertension -> Sodium/Vasoconstrictors", nil
	case strings.Contains(prompt, markEvidence):
		n := 0
		if m := objectCountRe.FindStringSubmatch(prompt); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		profiles := make([]map[string]any, n)
		for i := range profiles {
			profiles[i] = map[string]any{
				"name":           fmt.Sprintf("ingredient %d", i+1),
				"manufacturing":  "natural",
				"regulatory_gap": "none",
				"health_risks":   "minimal",
				"nova_score":     1,
			}
		}
		data, _ := json.Marshal(profiles)
		return "```json\n" + string(data) + "\n```", nil
	case strings.Contains(prompt, markAlternatives):
		return "1. Hippeas Chickpea Puffs (Why it's better: baked not fried)\n2. Terra Veggie Chips (Why it's better: less sodium)", nil
	case strings.Contains(prompt, markRisk):
		return "No direct conflicts identified.", nil
	case strings.Contains(prompt, markNarrative):
		return validNarrative("the product", "Generally safe"), nil
	}
	return "", fmt.Errorf("stub: unexpected prompt")
}

func (stubReasoning) InvokeStructured(_ context.Context, _ string, _ reasoning.Schema, out any) error {
	return reasoning.DecodeStructured(`{"brand": "Stub Brand", "ingredients": ["water"]}`, out)
}

func (stubReasoning) InvokeVision(_ context.Context, _ string, _ reasoning.Image) (string, error) {
	return `{"brand": "Lay's Classic", "ingredients": ["potatoes", "oil", "salt"], "nutrition": {"calories": 160, "sodium_mg": 170}}`, nil
}

func validNarrative(brand, decision string) string {
	return `🤔 Scanning your ` + brand + `...

**Quick Decision:** ` + decision + ` - enjoy a small handful.

**Why This Matters To You:**
- **Blood pressure**: 170mg sodium = 7% of the 2300mg daily reference.
- **Energy**: 160 calories = 8% of your ~2000 daily needs.

**Tradeoffs**: Tasty and filling, but easy to overeat.

**What I'm Unsure About**:
- **Oil type**: The label does not say which oil is used.
- **Portion**: Serving size is not printed.

**Better Options**:
- Hippeas Chickpea Puffs (Why it's better: baked not fried)
- Terra Veggie Chips (Why it's better: less sodium)`
}

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Extractor: config.ExtractorConfig{Strategy: StrategyVision},
		Category:  config.CategoryConfig{LookupTimeoutMs: 1000},
		Research:  config.ResearchConfig{MaxConcurrency: 4},
		Lookups:   config.LookupsConfig{TimeoutSecs: 5, BreakerFailures: 5, BreakerCooldown: 30},
	}
}

func testTables(t *testing.T) *Tables {
	t.Helper()
	tables, err := DefaultTables()
	require.NoError(t, err)
	return tables
}

// writePNG writes a small valid PNG and returns its path.
func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "label.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}
