// Package wikipedia fetches article lead paragraphs from Wikipedia.
package wikipedia

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// ErrNotFound is returned when no article exists for the term.
var ErrNotFound = eris.New("wikipedia: article not found")

// maxParagraphs is how many leading paragraphs make up an article summary.
const maxParagraphs = 3

// Client defines the Wikipedia operations.
type Client interface {
	// Fetch returns the lead paragraphs of the article for term.
	Fetch(ctx context.Context, term string) (*Article, error)
}

// Article is the lead of a Wikipedia article.
type Article struct {
	Title   string
	URL     string
	Summary string
}

// Option configures the Wikipedia client.
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

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a new Wikipedia client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://en.wikipedia.org",
		userAgent: "label-copilot/1.0",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ArticlePath converts a term to its /wiki/ path, e.g. "citric acid" to
// "/wiki/Citric_acid".
func ArticlePath(term string) string {
	term = strings.Join(strings.Fields(term), "_")
	if term != "" {
		term = strings.ToUpper(term[:1]) + term[1:]
	}
	return "/wiki/" + url.PathEscape(term)
}

func (c *httpClient) Fetch(ctx context.Context, term string) (*Article, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrNotFound
	}
	reqURL := c.baseURL + ArticlePath(term)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("wikipedia: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: parse html")
	}

	paras := leadParagraphs(doc, maxParagraphs)
	if len(paras) == 0 {
		return nil, ErrNotFound
	}

	return &Article{
		Title:   pageTitle(doc, term),
		URL:     reqURL,
		Summary: strings.Join(paras, " "),
	}, nil
}

// leadParagraphs returns the text of the first n non-empty <p> elements in
// document order.
func leadParagraphs(doc *html.Node, n int) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if len(out) >= n {
			return
		}
		if node.Type == html.ElementNode && node.Data == "p" {
			if text := textContent(node); text != "" {
				out = append(out, text)
			}
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

func pageTitle(doc *html.Node, fallback string) string {
	var title string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if title != "" {
			return
		}
		if node.Type == html.ElementNode && node.Data == "h1" {
			title = textContent(node)
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	if title == "" {
		return fallback
	}
	return title
}

// textContent concatenates text nodes under n, skipping <sup> reference
// markers and <style> blocks, with whitespace collapsed.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "sup" || node.Data == "style" || node.Data == "script") {
			return
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
