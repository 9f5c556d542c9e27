package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/internal/resilience"
	"github.com/sells-group/label-copilot/internal/store"
	"github.com/sells-group/label-copilot/pkg/openfoodfacts"
	"github.com/sells-group/label-copilot/pkg/wikipedia"
)

// Reasons a lookup produced no context.
const (
	ReasonDisabled    = "disabled"
	ReasonNotFound    = "not_found"
	ReasonCircuitOpen = "circuit_open"
	ReasonTimeout     = "timeout"
	ReasonError       = "error"
)

// Fragment is the optional context one best-effort lookup contributed. Text
// is empty when the lookup failed, in which case Reason says why.
type Fragment struct {
	Text   string
	Reason string
}

// Lookups wraps the encyclopedia and product database behind per-source
// circuit breakers, short timeouts and the lookup cache. Lookups never
// return errors; failures become a Reason.
type Lookups struct {
	wiki     wikipedia.Client
	off      openfoodfacts.Client
	cache    store.Cache
	breakers *resilience.ServiceBreakers
	timeout  time.Duration
	ttl      time.Duration
}

// NewLookups creates the lookup layer. wiki, off and cache may be nil.
func NewLookups(wiki wikipedia.Client, off openfoodfacts.Client, cache store.Cache, cfg config.LookupsConfig, ttl time.Duration) *Lookups {
	if cache == nil {
		cache = store.Noop{}
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Lookups{
		wiki:  wiki,
		off:   off,
		cache: cache,
		breakers: resilience.NewServiceBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         time.Duration(cfg.BreakerCooldown) * time.Second,
			IsFailure:        isLookupFailure,
		}),
		timeout: timeout,
		ttl:     ttl,
	}
}

// isLookupFailure keeps "no such article/product" from tripping a breaker.
func isLookupFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, wikipedia.ErrNotFound) && !errors.Is(err, openfoodfacts.ErrNotFound)
}

// Encyclopedia returns the lead paragraphs of the article for term.
func (l *Lookups) Encyclopedia(ctx context.Context, term string) Fragment {
	if l == nil || l.wiki == nil {
		return Fragment{Reason: ReasonDisabled}
	}
	if data := l.cached(ctx, store.SourceWikipedia, term); data != nil {
		return Fragment{Text: string(data)}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	article, err := resilience.ExecuteVal(callCtx, l.breakers.Get(store.SourceWikipedia),
		func(ctx context.Context) (*wikipedia.Article, error) {
			return l.wiki.Fetch(ctx, term)
		})
	if err != nil {
		return Fragment{Reason: failureReason(callCtx, err)}
	}
	if article.Summary == "" {
		return Fragment{Reason: ReasonNotFound}
	}

	l.remember(ctx, store.SourceWikipedia, term, []byte(article.Summary))
	return Fragment{Text: article.Summary}
}

// FirstProduct returns the best product database match for term. A timeout
// of zero uses the lookup default.
func (l *Lookups) FirstProduct(ctx context.Context, term string, timeout time.Duration) (*openfoodfacts.Product, string) {
	if l == nil || l.off == nil {
		return nil, ReasonDisabled
	}
	if data := l.cached(ctx, store.SourceOpenFoodFacts, term); data != nil {
		var p openfoodfacts.Product
		if err := json.Unmarshal(data, &p); err == nil {
			p.Raw = data
			return &p, ""
		}
	}

	if timeout <= 0 {
		timeout = l.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := resilience.ExecuteVal(callCtx, l.breakers.Get(store.SourceOpenFoodFacts),
		func(ctx context.Context) (*openfoodfacts.SearchResponse, error) {
			return l.off.Search(ctx, openfoodfacts.SearchRequest{Terms: term, PageSize: 1})
		})
	if err != nil {
		return nil, failureReason(callCtx, err)
	}
	if len(resp.Products) == 0 {
		return nil, ReasonNotFound
	}

	p := resp.Products[0]
	if len(p.Raw) > 0 {
		l.remember(ctx, store.SourceOpenFoodFacts, term, p.Raw)
	}
	return &p, ""
}

func (l *Lookups) cached(ctx context.Context, source, term string) []byte {
	data, err := l.cache.GetLookup(ctx, source, term)
	if err != nil {
		zap.L().Warn("lookups: cache read failed",
			zap.String("source", source),
			zap.String("term", term),
			zap.Error(err),
		)
		return nil
	}
	return data
}

func (l *Lookups) remember(ctx context.Context, source, term string, data []byte) {
	if l.ttl <= 0 {
		return
	}
	if err := l.cache.SetLookup(ctx, source, term, data, l.ttl); err != nil {
		zap.L().Warn("lookups: cache write failed",
			zap.String("source", source),
			zap.String("term", term),
			zap.Error(err),
		)
	}
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, wikipedia.ErrNotFound), errors.Is(err, openfoodfacts.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return ReasonTimeout
	default:
		return ReasonError
	}
}
