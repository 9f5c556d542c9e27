package wikipedia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html><html><body>
<h1 id="firstHeading">Citric acid</h1>
<div class="mw-parser-output">
<p class="mw-empty-elt"> </p>
<p><b>Citric acid</b> is an organic compound<sup>[1]</sup> with the formula C6H8O7.</p>
<p>It occurs naturally in citrus fruits.</p>
<p>It is used widely as an acidifier and flavoring.</p>
<p>A fourth paragraph that is ignored.</p>
</div></body></html>`

func TestFetch_LeadParagraphs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/Citric_acid", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL), WithUserAgent("test-agent"))
	a, err := c.Fetch(context.Background(), "citric acid")
	require.NoError(t, err)

	assert.Equal(t, "Citric acid", a.Title)
	assert.Equal(t,
		"Citric acid is an organic compound with the formula C6H8O7. It occurs naturally in citrus fruits. It is used widely as an acidifier and flavoring.",
		a.Summary)
	assert.NotContains(t, a.Summary, "fourth")
	assert.NotContains(t, a.Summary, "[1]")
}

func TestFetch_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, err := c.Fetch(context.Background(), "xanthan")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.Fetch(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetch_NoParagraphs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Empty</h1></body></html>`))
	}))
	defer ts.Close()

	_, err := NewClient(WithBaseURL(ts.URL)).Fetch(context.Background(), "empty")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetch_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	_, err := NewClient(WithBaseURL(ts.URL)).Fetch(context.Background(), "salt")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestArticlePath(t *testing.T) {
	assert.Equal(t, "/wiki/Salt", ArticlePath("salt"))
	assert.Equal(t, "/wiki/Palm_oil", ArticlePath("palm  oil"))
	assert.Equal(t, "/wiki/Monosodium_glutamate", ArticlePath(" monosodium glutamate "))
}
