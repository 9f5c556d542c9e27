package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/model"
)

// DefaultCategoryLookupTimeout bounds the product database tier.
const DefaultCategoryLookupTimeout = time.Second

// CategoryDetector classifies a product from its brand in three tiers:
// keyword table, product database lookup, default category.
type CategoryDetector struct {
	tables  *Tables
	lookups *Lookups
	timeout time.Duration
}

// NewCategoryDetector creates a detector. lookups may be nil, which skips
// the product database tier.
func NewCategoryDetector(tables *Tables, lookups *Lookups, timeout time.Duration) *CategoryDetector {
	if timeout <= 0 {
		timeout = DefaultCategoryLookupTimeout
	}
	return &CategoryDetector{tables: tables, lookups: lookups, timeout: timeout}
}

// Detect returns the category and the tier that produced it. The keyword
// tier always runs first and short-circuits the lookup.
func (d *CategoryDetector) Detect(ctx context.Context, brand string) model.Category {
	log := zap.L().With(zap.String("brand", brand))

	if label, ok := d.tables.MatchCategory(brand); ok {
		log.Info("category: detected via keyword", zap.String("category", label))
		return model.Category{Label: label, Method: model.CategoryMethodKeyword}
	}

	if b := strings.TrimSpace(brand); b != "" && b != model.UnknownBrand {
		product, reason := d.lookups.FirstProduct(ctx, b, d.timeout)
		if product != nil {
			if label := product.LeafCategory(); label != "" {
				log.Info("category: detected via product database", zap.String("category", label))
				return model.Category{Label: label, Method: model.CategoryMethodAPI}
			}
			reason = "no_categories"
		}
		log.Debug("category: product database gave no category", zap.String("reason", reason))
	}

	log.Warn("category: could not detect category, using default", zap.String("category", model.DefaultCategory))
	return model.Category{Label: model.DefaultCategory, Method: model.CategoryMethodFallback}
}
