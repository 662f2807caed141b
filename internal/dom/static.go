package dom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type StaticOptions struct {
	Timeout   time.Duration
	UserAgent string
	// Transport is used by every session's client. Nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

func DefaultStaticOptions() *StaticOptions {
	return &StaticOptions{
		Timeout:   30 * time.Second,
		UserAgent: defaultUserAgent,
	}
}

// StaticLauncher renders pages by fetching them over HTTP and parsing the
// markup with goquery. It does not execute scripts, which is fine for
// server-rendered catalogs.
type StaticLauncher struct {
	opts   *StaticOptions
	logger *slog.Logger
}

func NewStaticLauncher(opts *StaticOptions) *StaticLauncher {
	if opts == nil {
		opts = DefaultStaticOptions()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &StaticLauncher{
		opts:   opts,
		logger: slog.Default().With("component", "static_engine"),
	}
}

// Launch returns a session with its own client and cookie jar.
func (l *StaticLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := l.opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &staticSession{
		client: &http.Client{
			Jar:       jar,
			Timeout:   l.opts.Timeout,
			Transport: transport,
		},
		userAgent: l.opts.UserAgent,
		logger:    l.logger,
	}, nil
}

type staticSession struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	closed    bool
}

func (s *staticSession) NewPage() (Page, error) {
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	return &staticPage{session: s}, nil
}

func (s *staticSession) Close() error {
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

type staticPage struct {
	session *staticSession
	doc     *goquery.Document
	url     string
}

// parseDocument returns a detached page holding the document parsed from r,
// as loaded from rawURL.
func parseDocument(rawURL string, r io.Reader) (*staticPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}
	return &staticPage{doc: doc, url: rawURL}, nil
}

func (p *staticPage) Goto(ctx context.Context, url string) error {
	if p.session == nil {
		return fmt.Errorf("%w: %s: page is detached from a session", ErrNavigationFailed, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, url, err)
	}
	req.Header.Set("User-Agent", p.session.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := p.session.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", ErrNavigationFailed, url, resp.StatusCode)
	}

	loaded, err := parseDocument(resp.Request.URL.String(), resp.Body)
	if err != nil {
		return err
	}

	p.doc = loaded.doc
	p.url = loaded.url
	p.session.logger.Debug("navigated", "url", p.url)

	return nil
}

func (p *staticPage) URL() string {
	return p.url
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

func (p *staticPage) root() (*staticElement, error) {
	if p.doc == nil {
		return nil, ErrNoDocument
	}
	return &staticElement{sel: p.doc.Selection}, nil
}

func (p *staticPage) QuerySelector(selector string) (Element, error) {
	root, err := p.root()
	if err != nil {
		return nil, err
	}
	return root.QuerySelector(selector)
}

func (p *staticPage) QuerySelectorAll(selector string) ([]Element, error) {
	root, err := p.root()
	if err != nil {
		return nil, err
	}
	return root.QuerySelectorAll(selector)
}

func (p *staticPage) InnerText() (string, error) {
	if p.doc == nil {
		return "", ErrNoDocument
	}
	return (&staticElement{sel: p.doc.Find("body")}).InnerText()
}

func (p *staticPage) TextContent() (string, error) {
	root, err := p.root()
	if err != nil {
		return "", err
	}
	return root.TextContent()
}

func (p *staticPage) GetAttribute(name string) (string, error) {
	if p.doc == nil {
		return "", ErrNoDocument
	}
	return (&staticElement{sel: p.doc.Find("html")}).GetAttribute(name)
}

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) QuerySelector(selector string) (Element, error) {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	match := e.sel.Find(selector).First()
	if match.Length() == 0 {
		return nil, nil
	}
	return &staticElement{sel: match}, nil
}

func (e *staticElement) QuerySelectorAll(selector string) ([]Element, error) {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	matches := e.sel.Find(selector)
	elements := make([]Element, 0, matches.Length())
	matches.Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &staticElement{sel: s})
	})
	return elements, nil
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// InnerText approximates the rendered text. Whitespace within a line
// collapses to single spaces, while <br> and block boundaries start a new
// line. Blank lines are dropped, so paragraphs are one line break apart
// where a browser leaves an empty line between them.
func (e *staticElement) InnerText() (string, error) {
	var b strings.Builder
	writeInnerText(&b, e.sel.Contents())

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func writeInnerText(b *strings.Builder, nodes *goquery.Selection) {
	nodes.Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); {
		case name == "#text":
			b.WriteString(strings.ReplaceAll(s.Text(), "\n", " "))
		case name == "br":
			b.WriteByte('\n')
		case name == "script", name == "style", name == "#comment":
		case blockElements[name]:
			b.WriteByte('\n')
			writeInnerText(b, s.Contents())
			b.WriteByte('\n')
		default:
			writeInnerText(b, s.Contents())
		}
	})
}

func (e *staticElement) TextContent() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) GetAttribute(name string) (string, error) {
	value, _ := e.sel.Attr(name)
	return value, nil
}
