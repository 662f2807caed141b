package dom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<div class="caption">
	<h4 class="price">$24.99</h4>
	<h4><a class="title" href="/product/1">  Nokia
	 123 </a></h4>
</div>
<select aria-label="color"><option>Select color</option><option>Black</option></select>
</body></html>`

func TestParseDocumentQueries(t *testing.T) {
	page, err := parseDocument("https://example.com/list", strings.NewReader(samplePage))
	require.NoError(t, err)

	headings, err := page.QuerySelectorAll(".caption > h4")
	require.NoError(t, err)
	require.Len(t, headings, 2)

	name, err := headings[1].InnerText()
	require.NoError(t, err)
	assert.Equal(t, "Nokia 123", name)

	link, err := page.QuerySelector(".title")
	require.NoError(t, err)
	require.NotNil(t, link)
	href, err := link.GetAttribute("href")
	require.NoError(t, err)
	assert.Equal(t, "/product/1", href)

	missing, err := page.QuerySelector(".swatches")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dropdown, err := page.QuerySelector(`[aria-label="color"]`)
	require.NoError(t, err)
	require.NotNil(t, dropdown)
	options, err := dropdown.QuerySelectorAll("option")
	require.NoError(t, err)
	assert.Len(t, options, 2)

	assert.Equal(t, "https://example.com/list", page.URL())
}

func TestInvalidSelector(t *testing.T) {
	page, err := parseDocument("https://example.com", strings.NewReader(samplePage))
	require.NoError(t, err)

	_, err = page.QuerySelector("div[")
	assert.Error(t, err)
}

func TestInnerTextLineBreaks(t *testing.T) {
	page, err := parseDocument("https://example.com", strings.NewReader(`<html><body>
<div class="listing">
	<p>First
	   line</p><p>Second<br>line</p>
	<script>var hidden = 1;</script>
	<span>tail</span> <b>end</b>
</div>
</body></html>`))
	require.NoError(t, err)

	listing, err := page.QuerySelector(".listing")
	require.NoError(t, err)
	require.NotNil(t, listing)

	text, err := listing.InnerText()
	require.NoError(t, err)
	assert.Equal(t, "First line\nSecond\nline\ntail end", text)

	body, err := page.InnerText()
	require.NoError(t, err)
	assert.Equal(t, text, body)

	raw, err := listing.TextContent()
	require.NoError(t, err)
	assert.Contains(t, raw, "var hidden")
}

func TestStaticPageGoto(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	launcher := NewStaticLauncher(nil)
	session, err := launcher.Launch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	page, err := session.NewPage()
	require.NoError(t, err)

	_, err = page.QuerySelector("h4")
	assert.ErrorIs(t, err, ErrNoDocument)

	require.NoError(t, page.Goto(context.Background(), server.URL+"/ok"))
	assert.Equal(t, server.URL+"/ok", page.URL())

	price, err := page.QuerySelector(".price")
	require.NoError(t, err)
	text, err := price.TextContent()
	require.NoError(t, err)
	assert.Equal(t, "$24.99", text)

	err = page.Goto(context.Background(), server.URL+"/gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNavigationFailed))
	assert.Contains(t, err.Error(), "/gone")
}

func TestClosedSessionRejectsPages(t *testing.T) {
	session, err := NewStaticLauncher(nil).Launch(context.Background())
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.NewPage()
	assert.Error(t, err)
}

func TestLaunchHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticLauncher(nil).Launch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
