package scraper

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// catalogServer serves a small catalog with the same markup as the
// webscraper.io test shop.
type catalogServer struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string]string
	statuses map[string]int
	requests []string
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()

	cs := &catalogServer{
		pages:    make(map[string]string),
		statuses: make(map[string]int),
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.serve))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *catalogServer) serve(w http.ResponseWriter, r *http.Request) {
	cs.mu.Lock()
	cs.requests = append(cs.requests, r.URL.Path)
	body, ok := cs.pages[r.URL.Path]
	status := cs.statuses[r.URL.Path]
	cs.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func (cs *catalogServer) handle(path, body string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pages[path] = body
}

func (cs *catalogServer) fail(path string, status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.statuses[path] = status
}

func (cs *catalogServer) Requests() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, len(cs.requests))
	copy(out, cs.requests)
	return out
}

func (cs *catalogServer) url(path string) string {
	return cs.URL + path
}

func linkPage(class string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="sidebar">`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<a class="%s" href="%s">%s</a>`, class, href, href)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func rootPage(categories ...string) string {
	return linkPage("category-link", categories...)
}

func categoryPage(subcategories ...string) string {
	return linkPage("subcategory-link", subcategories...)
}

func subcategoryPage(products ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="row">`)
	for _, href := range products {
		fmt.Fprintf(&b, `<div class="thumbnail"><div class="caption"><h4><a href="%s" class="title">%s</a></h4></div></div>`, href, href)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

type productFixture struct {
	Name          string
	Description   string
	Price         string
	Swatches      []string
	EmptySwatches bool // swatch container rendered without swatches
	Colors        []string
	Reviews       string
	Stars         int
	NoCommon      bool
}

func productPage(p productFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="container"><div class="row">`)
	if !p.NoCommon {
		b.WriteString(`<div class="col-lg-10">`)
	} else {
		b.WriteString(`<div class="col-md-9">`)
	}
	b.WriteString(`<div class="thumbnail"><div class="caption">`)
	fmt.Fprintf(&b, `<h4 class="pull-right price">%s</h4>`, p.Price)
	fmt.Fprintf(&b, `<h4>%s</h4>`, p.Name)
	fmt.Fprintf(&b, `<p class="description">%s</p>`, p.Description)
	if len(p.Swatches) > 0 || p.EmptySwatches {
		b.WriteString(`<div class="swatches">`)
		for _, s := range p.Swatches {
			fmt.Fprintf(&b, `<button type="button" class="btn swatch"> %s </button>`, s)
		}
		b.WriteString(`</div>`)
	}
	if len(p.Colors) > 0 {
		b.WriteString(`<select aria-label="color" class="dropdown"><option value="">Select color</option>`)
		for _, c := range p.Colors {
			fmt.Fprintf(&b, `<option value="%s">%s</option>`, c, c)
		}
		b.WriteString(`</select>`)
	}
	b.WriteString(`</div>`)
	fmt.Fprintf(&b, `<div class="ratings"><p class="pull-right">%s</p><p>`, p.Reviews)
	for i := 0; i < p.Stars; i++ {
		b.WriteString(`<span class="ws-icon ws-icon-star"></span>`)
	}
	b.WriteString(`</p></div></div></div></div></div></body></html>`)
	return b.String()
}

// syncBuffer lets concurrent workers log into one buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, buf
}
