package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-copilot/internal/imagestore"
	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

var testImage = reasoning.Image{Data: []byte("png-bytes"), MediaType: "image/png"}

func newImageMock(path string, err error) *mockImageStore {
	images := &mockImageStore{}
	if err != nil {
		images.On("Open", mock.Anything, path).Return(reasoning.Image{}, err)
	} else {
		images.On("Open", mock.Anything, path).Return(testImage, nil)
	}
	return images
}

func TestExtract_VisionFencedJSON(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return(
		"Here is the label:\n```json\n{\"brand\": \" Lay's Classic \", \"ingredients\": [\"potatoes\", \" oil\", \"\", \"salt\"], \"nutrition\": {\"calories\": 160, \"sodium_mg\": \"170mg\"}}\n```", nil)

	e := NewLabelExtractor(StrategyVision, newImageMock("chips.png", nil), svc, nil)
	res := e.Extract(ctx, "chips.png")

	assert.Equal(t, "Lay's Classic", res.Label.Brand)
	assert.Equal(t, []string{"potatoes", "oil", "salt"}, res.Label.Ingredients)
	require.NotNil(t, res.Label.Nutrition)
	assert.InDelta(t, 160, res.Label.Nutrition.Calories.Value, 0.001)
	assert.InDelta(t, 170, res.Label.Nutrition.SodiumMg.Value, 0.001)
	assert.Nil(t, res.Label.Nutrition.SugarsG)
	assert.Empty(t, res.Flags)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "InvokeStructured", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_NoNutritionTableIsNil(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return(
		`{"brand": "Organic Date Bites", "ingredients": ["dates", "almonds"], "nutrition": null}`, nil)

	res := NewLabelExtractor(StrategyVision, newImageMock("dates.png", nil), svc, nil).Extract(ctx, "dates.png")

	assert.Equal(t, "Organic Date Bites", res.Label.Brand)
	assert.Nil(t, res.Label.Nutrition)
	assert.Empty(t, res.Flags)
}

func TestExtract_SecondChanceParse(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).
		Return("Brand: Oreo. Ingredients: sugar, flour, palm oil.", nil)
	svc.On("InvokeStructured", ctx, promptWith("Brand: Oreo"), labelSchema).
		Return(`{"brand": "Oreo", "ingredients": ["sugar", "flour", "palm oil"]}`, nil)

	res := NewLabelExtractor(StrategyVision, newImageMock("oreo.png", nil), svc, nil).Extract(ctx, "oreo.png")

	assert.Equal(t, "Oreo", res.Label.Brand)
	assert.Equal(t, []string{"sugar", "flour", "palm oil"}, res.Label.Ingredients)
	assert.Equal(t, []model.QualityFlag{model.FlagLabelSecondChance}, res.Flags)
	svc.AssertExpectations(t)
}

func TestExtract_SecondChanceFailsFallsBack(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return("I cannot read this label.", nil)
	svc.On("InvokeStructured", ctx, mock.Anything, labelSchema).Return("", reasoning.ErrMalformedResponse)

	res := NewLabelExtractor(StrategyVision, newImageMock("blurry.png", nil), svc, nil).Extract(ctx, "blurry.png")

	assert.Equal(t, model.FallbackLabel(), res.Label)
	assert.Equal(t, []model.QualityFlag{model.FlagLabelFallback}, res.Flags)
}

func TestExtract_VisionErrorFallsBack(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return("", errors.New("503 overloaded"))

	res := NewLabelExtractor(StrategyVision, newImageMock("x.png", nil), svc, nil).Extract(ctx, "x.png")

	assert.Equal(t, model.UnknownBrand, res.Label.Brand)
	assert.NotNil(t, res.Label.Ingredients)
	assert.Empty(t, res.Label.Ingredients)
	assert.Nil(t, res.Label.Nutrition)
	svc.AssertNotCalled(t, "InvokeStructured", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_UnreadableImageFallsBack(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	imgErr := &imagestore.ImageError{Path: "missing.png", Reason: imagestore.ReasonUnreadable, Err: errors.New("no such file")}

	res := NewLabelExtractor(StrategyVision, newImageMock("missing.png", imgErr), svc, nil).Extract(ctx, "missing.png")

	assert.Equal(t, model.FallbackLabel(), res.Label)
	assert.Contains(t, res.Flags, model.FlagLabelFallback)
	svc.AssertNotCalled(t, "InvokeVision", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_BadNutritionKeepsBrandAndIngredients(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return(
		`{"brand": "Maggi", "ingredients": ["wheat flour", "palm oil"], "nutrition": {"calories": "lots", "sodium_mg": 860}}`, nil)

	res := NewLabelExtractor(StrategyVision, newImageMock("maggi.png", nil), svc, nil).Extract(ctx, "maggi.png")

	assert.Equal(t, "Maggi", res.Label.Brand)
	assert.Equal(t, []string{"wheat flour", "palm oil"}, res.Label.Ingredients)
	assert.Nil(t, res.Label.Nutrition)
	assert.Equal(t, []model.QualityFlag{model.FlagNutritionDropped}, res.Flags)
}

func TestExtract_BlankBrandIsUnknown(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	svc.On("InvokeVision", ctx, labelVisionPrompt, testImage).Return(`{"brand": "  ", "ingredients": ["salt"]}`, nil)

	res := NewLabelExtractor(StrategyVision, newImageMock("x.png", nil), svc, nil).Extract(ctx, "x.png")
	assert.Equal(t, model.UnknownBrand, res.Label.Brand)
	assert.Equal(t, []string{"salt"}, res.Label.Ingredients)
}

func TestExtract_OCRStrategy(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	ocrExt := &mockOCR{}
	ocrExt.On("ExtractText", ctx, testImage).Return("PRINGLES\nINGREDIENTS: dried potatoes, vegetable oil, rice flour", nil)
	svc.On("InvokeStructured", ctx, promptWith("OCR TEXT", "PRINGLES"), labelSchema).
		Return(`{"brand": "Pringles", "ingredients": ["dried potatoes", "vegetable oil", "rice flour"], "nutrition": {"calories": 150}}`, nil)

	res := NewLabelExtractor(StrategyOCR, newImageMock("p.png", nil), svc, ocrExt).Extract(ctx, "p.png")

	assert.Equal(t, "Pringles", res.Label.Brand)
	assert.Len(t, res.Label.Ingredients, 3)
	require.NotNil(t, res.Label.Nutrition)
	svc.AssertNotCalled(t, "InvokeVision", mock.Anything, mock.Anything, mock.Anything)
	ocrExt.AssertExpectations(t)
}

func TestExtract_OCREmptyTextFallsBack(t *testing.T) {
	ctx := context.Background()
	svc := &mockReasoning{}
	ocrExt := &mockOCR{}
	ocrExt.On("ExtractText", ctx, testImage).Return("  \n ", nil)

	res := NewLabelExtractor(StrategyOCR, newImageMock("p.png", nil), svc, ocrExt).Extract(ctx, "p.png")
	assert.Equal(t, model.FallbackLabel(), res.Label)
	svc.AssertNotCalled(t, "InvokeStructured", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_OCRWithoutServiceFallsBack(t *testing.T) {
	res := NewLabelExtractor(StrategyOCR, newImageMock("p.png", nil), &mockReasoning{}, nil).Extract(context.Background(), "p.png")
	assert.Equal(t, []model.QualityFlag{model.FlagLabelFallback}, res.Flags)
}

func TestLabelResult_Delta(t *testing.T) {
	d := fallbackResult().Delta()
	require.NotNil(t, d.BrandName)
	assert.Equal(t, model.UnknownBrand, *d.BrandName)
	assert.True(t, d.SetIngredients)
	assert.True(t, d.SetNutrition)
	assert.Nil(t, d.Nutrition)

	s, err := model.NewState(model.Input{ImagePath: "x"}).Apply(d)
	require.NoError(t, err)
	assert.NotNil(t, s.Ingredients)
	assert.Empty(t, s.Ingredients)
}
