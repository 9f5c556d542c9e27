package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/internal/imagestore"
	"github.com/sells-group/label-copilot/internal/ocr"
	"github.com/sells-group/label-copilot/internal/pipeline"
	"github.com/sells-group/label-copilot/internal/reasoning"
	"github.com/sells-group/label-copilot/internal/store"
	"github.com/sells-group/label-copilot/pkg/openfoodfacts"
	"github.com/sells-group/label-copilot/pkg/wikipedia"
)

// pipelineEnv holds the cache and the pipeline needed by the scan and serve
// commands.
type pipelineEnv struct {
	Cache    store.Cache
	Images   *imagestore.Loader
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
}

// initPipeline validates cfg for mode, opens the lookup cache, builds every
// client and assembles the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	svc, err := reasoning.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open lookup cache")
	}

	images, err := initImages(ctx, cfg, mode)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	var ocrExt ocr.Extractor
	if cfg.Extractor.Strategy == pipeline.StrategyOCR {
		ocrExt, err = ocr.NewExtractor(ctx, cfg.OCR, cfg.AWS)
		if err != nil {
			_ = cache.Close()
			return nil, eris.Wrap(err, "init ocr")
		}
		zap.L().Info("ocr extractor enabled", zap.String("provider", cfg.OCR.Provider))
	}

	p, err := pipeline.New(cfg, svc, images, ocrExt, initLookups(cfg, cache))
	if err != nil {
		_ = cache.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}

	zap.L().Info("pipeline ready",
		zap.String("provider", cfg.Reasoning.Provider),
		zap.String("extractor", cfg.Extractor.Strategy),
		zap.String("cache", cfg.Store.Driver),
	)

	return &pipelineEnv{Cache: cache, Images: images, Pipeline: p}, nil
}

// initImages builds the image loader. S3 paths are only supported when an
// AWS region is configured. serve always confines paths to image.root and
// image.allowed_buckets; scan applies whichever is set.
func initImages(ctx context.Context, c *config.Config, mode string) (*imagestore.Loader, error) {
	var opts []imagestore.Option
	if mode == "serve" || c.Image.Root != "" {
		opts = append(opts, imagestore.WithRoot(c.Image.Root))
	}
	if mode == "serve" || len(c.Image.AllowedBuckets) > 0 {
		opts = append(opts, imagestore.WithAllowedBuckets(c.Image.AllowedBuckets...))
	}
	if c.AWS.Region != "" {
		s3Client, err := imagestore.NewS3Client(ctx, c.AWS.Region)
		if err != nil {
			return nil, eris.Wrap(err, "init s3 client")
		}
		opts = append(opts, imagestore.WithS3(s3Client))
	}
	return imagestore.New(c.Image.MaxBytes, opts...), nil
}

// initLookups builds the encyclopedia and product database clients behind
// the lookup cache.
func initLookups(c *config.Config, cache store.Cache) *pipeline.Lookups {
	wiki := wikipedia.NewClient(
		wikipedia.WithBaseURL(c.Lookups.WikipediaURL),
		wikipedia.WithUserAgent(c.Lookups.UserAgent),
	)
	off := openfoodfacts.NewClient(
		openfoodfacts.WithBaseURL(c.Lookups.OpenFoodFactsURL),
		openfoodfacts.WithUserAgent(c.Lookups.UserAgent),
		openfoodfacts.WithRateLimit(c.Lookups.RatePerMinute),
	)
	ttl := time.Duration(c.Store.TTLHours) * time.Hour
	return pipeline.NewLookups(wiki, off, cache, c.Lookups, ttl)
}
