// Package openfoodfacts provides a client for the Open Food Facts product
// search API.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when a search matches no products.
var ErrNotFound = eris.New("openfoodfacts: no products found")

// Client defines the Open Food Facts operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is a full-text product search.
type SearchRequest struct {
	Terms    string
	PageSize int // default 1
}

// SearchResponse holds the matched products.
type SearchResponse struct {
	Count    int       `json:"count"`
	Products []Product `json:"-"`
}

// Product is the subset of product fields the pipeline reads. Raw keeps the
// full product object as returned by the API.
type Product struct {
	Code            string   `json:"code"`
	ProductName     string   `json:"product_name"`
	Brands          string   `json:"brands"`
	CategoriesTags  []string `json:"categories_tags"`
	IngredientsText string   `json:"ingredients_text"`

	Raw json.RawMessage `json:"-"`
}

// Option configures the Open Food Facts client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header. Open Food Facts asks every
// client to identify itself.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithRateLimit caps requests per minute. Zero or less disables the limiter.
func WithRateLimit(perMinute int) Option {
	return func(c *httpClient) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Open Food Facts client. The default limiter allows
// 10 searches per minute, the API's published search limit.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://world.openfoodfacts.org",
		userAgent: "label-copilot/1.0",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10.0/60), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(sr.Terms) == "" {
		return nil, ErrNotFound
	}
	if sr.PageSize <= 0 {
		sr.PageSize = 1
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "openfoodfacts: rate limit wait")
		}
	}

	params := url.Values{}
	params.Set("search_terms", sr.Terms)
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("page_size", strconv.Itoa(sr.PageSize))
	reqURL := c.baseURL + "/cgi/search.pl?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("openfoodfacts: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var envelope struct {
		Count    json.Number       `json:"count"`
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: decode response")
	}
	if len(envelope.Products) == 0 {
		return nil, ErrNotFound
	}

	out := &SearchResponse{Products: make([]Product, 0, len(envelope.Products))}
	if n, err := envelope.Count.Int64(); err == nil {
		out.Count = int(n)
	}
	for _, raw := range envelope.Products {
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, eris.Wrap(err, "openfoodfacts: decode product")
		}
		p.Raw = raw
		out.Products = append(out.Products, p)
	}
	return out, nil
}

// LeafCategory returns the most specific category tag of p with its language
// prefix removed and dashes replaced by spaces, e.g. "en:potato-crisps"
// becomes "potato crisps". It returns "" when p has no tags.
func (p Product) LeafCategory() string {
	if len(p.CategoriesTags) == 0 {
		return ""
	}
	tag := p.CategoriesTags[len(p.CategoriesTags)-1]
	if i := strings.Index(tag, ":"); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.TrimSpace(strings.ReplaceAll(tag, "-", " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
