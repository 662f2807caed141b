package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/dom"
	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		},
	}
}

// Runtime owns the playwright driver. Every Launch starts a separate
// Chromium instance so sessions never share state.
type Runtime struct {
	pw     *playwright.Playwright
	opts   *Options
	logger *slog.Logger
}

func NewRuntime(opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &Runtime{
		pw:     pw,
		opts:   opts,
		logger: slog.Default().With("component", "browser"),
	}, nil
}

// Launch implements dom.Launcher.
func (r *Runtime) Launch(ctx context.Context) (dom.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &r.opts.Headless,
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	browser, err := r.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &r.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &r.opts.Locale,
		Viewport: &playwright.Size{
			Width:  r.opts.ViewportWidth,
			Height: r.opts.ViewportHeight,
		},
		ExtraHttpHeaders: r.opts.ExtraHeaders,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	r.logger.Debug("browser session launched")

	return &Browser{
		browser: browser,
		context: bctx,
		timeout: r.opts.Timeout,
		logger:  r.logger,
	}, nil
}

func (r *Runtime) Stop() error {
	if r.pw == nil {
		return nil
	}
	if err := r.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// Browser is one Chromium instance with a single context.
type Browser struct {
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

func (b *Browser) NewPage() (dom.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(b.timeout.Milliseconds()))

	return &Page{page: page}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// Page adapts a playwright page to dom.Page.
type Page struct {
	page playwright.Page
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", dom.ErrNavigationFailed, url, err)
	}
	if resp != nil && resp.Status() >= 400 {
		return fmt.Errorf("%w: %s returned status %d", dom.ErrNavigationFailed, url, resp.Status())
	}

	return nil
}

func (p *Page) URL() string {
	return p.page.URL()
}

func (p *Page) Close() error {
	return p.page.Close()
}

func (p *Page) QuerySelector(selector string) (dom.Element, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if handle == nil {
		return nil, nil
	}
	return &Element{handle: handle}, nil
}

func (p *Page) QuerySelectorAll(selector string) ([]dom.Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	return wrapHandles(handles), nil
}

func (p *Page) InnerText() (string, error) {
	return p.page.InnerText("body")
}

func (p *Page) TextContent() (string, error) {
	return p.page.TextContent("html")
}

func (p *Page) GetAttribute(name string) (string, error) {
	return p.page.GetAttribute("html", name)
}

// Element adapts a playwright element handle to dom.Element.
type Element struct {
	handle playwright.ElementHandle
}

func (e *Element) QuerySelector(selector string) (dom.Element, error) {
	handle, err := e.handle.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if handle == nil {
		return nil, nil
	}
	return &Element{handle: handle}, nil
}

func (e *Element) QuerySelectorAll(selector string) ([]dom.Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	return wrapHandles(handles), nil
}

func (e *Element) InnerText() (string, error) {
	return e.handle.InnerText()
}

func (e *Element) TextContent() (string, error) {
	return e.handle.TextContent()
}

func (e *Element) GetAttribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func wrapHandles(handles []playwright.ElementHandle) []dom.Element {
	elements := make([]dom.Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &Element{handle: h})
	}
	return elements
}
