// Package static_browser implements the browser contract over plain HTTP and
// parsed HTML. It needs no Chrome, runs no JavaScript, and submits forms the
// way a browser without scripts would.
package static_browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/pkg/identity"
	"github.com/user/listing-scraper/pkg/utils"
)

var errStaleElement = errors.New("element belongs to a page that is no longer loaded")

// Options configures a StaticBrowser.
type Options struct {
	PageLoadTimeout time.Duration
}

// StaticBrowser keeps the current document in memory. Elements are goquery
// selections on that document.
type StaticBrowser struct {
	opts    Options
	rotator *identity.Rotator
	logger  *zap.Logger

	mu         sync.Mutex
	client     *resty.Client
	doc        *goquery.Document
	base       *url.URL
	generation int
}

// NewStaticBrowser returns a browser with a fresh cookie jar and identity.
func NewStaticBrowser(opts Options, rotator *identity.Rotator, logger *zap.Logger) (*StaticBrowser, error) {
	b := &StaticBrowser{
		opts:    opts,
		rotator: rotator,
		logger:  logger,
	}
	if err := b.start(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *StaticBrowser) start() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	id := b.rotator.Next()

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(b.opts.PageLoadTimeout)
	client.SetHeader("User-Agent", id.UserAgent)
	client.SetHeader("Accept-Language", "es-ES,es;q=0.9")
	if id.Proxy != "" {
		client.SetProxy(id.Proxy)
	}

	b.client = client
	b.doc = nil
	b.base = nil
	b.generation++
	return nil
}

func (b *StaticBrowser) LoadURL(ctx context.Context, rawURL string) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	res, err := client.R().SetContext(ctx).Get(rawURL)
	return b.load(ctx, rawURL, res, err)
}

func (b *StaticBrowser) postForm(ctx context.Context, action string, values url.Values) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	res, err := client.R().SetContext(ctx).SetFormDataFromValues(values).Post(action)
	return b.load(ctx, action, res, err)
}

func (b *StaticBrowser) load(ctx context.Context, rawURL string, res *resty.Response, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, rawURL, err)
	}
	if res.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s: status %d", repository.ErrNavigationFailed, rawURL, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, rawURL, err)
	}
	base := res.RawResponse.Request.URL

	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = doc
	b.base = base
	b.generation++
	b.logger.Debug("page loaded", zap.String("url", base.String()), zap.Int("status", res.StatusCode()))
	return nil
}

func (b *StaticBrowser) FindElement(ctx context.Context, sel repository.Selector) (repository.Element, error) {
	els, err := b.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrElementNotFound, sel)
	}
	return els[0], nil
}

func (b *StaticBrowser) FindAll(_ context.Context, sel repository.Selector) ([]repository.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return nil, errors.New("no page loaded")
	}

	var els []repository.Element
	b.doc.Find(sel.CSS()).Each(func(_ int, s *goquery.Selection) {
		els = append(els, &element{browser: b, sel: s, generation: b.generation})
	})
	return els, nil
}

// WaitVisible checks the loaded document once. A static document never changes,
// so an element that is missing or hidden now will not appear within the timeout.
func (b *StaticBrowser) WaitVisible(ctx context.Context, sel repository.Selector, _ time.Duration) (repository.Element, error) {
	els, err := b.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if visible(el.(*element).sel) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", repository.ErrWaitTimeout, sel)
}

func (b *StaticBrowser) WaitPresentAll(ctx context.Context, sel repository.Selector, _ time.Duration) ([]repository.Element, error) {
	els, err := b.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrWaitTimeout, sel)
	}
	return els, nil
}

// Restart drops the cookie jar and current page and picks a new identity.
func (b *StaticBrowser) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start()
}

func (b *StaticBrowser) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = nil
	b.generation++
	return nil
}

func (b *StaticBrowser) resolve(ref string) (string, error) {
	b.mu.Lock()
	base := b.base
	b.mu.Unlock()
	if base == nil {
		return ref, nil
	}
	return utils.ToAbsoluteURL(base, ref)
}

func (b *StaticBrowser) current(generation int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation == generation
}

func visible(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "input" && strings.EqualFold(s.AttrOr("type", ""), "hidden") {
		return false
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

type element struct {
	browser    *StaticBrowser
	sel        *goquery.Selection
	generation int
}

func (e *element) check() error {
	if !e.browser.current(e.generation) {
		return errStaleElement
	}
	return nil
}

func (e *element) Text(context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *element) Attribute(_ context.Context, name string) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	value, ok := e.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", repository.ErrAttributeMissing, name)
	}
	switch name {
	case "href", "src", "action":
		return e.browser.resolve(value)
	}
	return value, nil
}

// SendKeys appends keys to the value of an input or textarea.
func (e *element) SendKeys(_ context.Context, keys string) error {
	if err := e.check(); err != nil {
		return err
	}
	switch goquery.NodeName(e.sel) {
	case "input", "textarea":
		e.sel.SetAttr("value", e.sel.AttrOr("value", "")+keys)
		return nil
	default:
		return fmt.Errorf("cannot type into <%s>", goquery.NodeName(e.sel))
	}
}

// Click follows links and submits forms. Clicking anything else does nothing.
func (e *element) Click(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}

	if link := e.sel.Closest("a[href]"); link.Length() > 0 {
		target, err := e.browser.resolve(link.AttrOr("href", ""))
		if err != nil {
			return err
		}
		return e.browser.LoadURL(ctx, target)
	}

	if e.isSubmit() {
		if form := e.sel.Closest("form"); form.Length() > 0 {
			return e.submit(ctx, form)
		}
	}
	return nil
}

func (e *element) isSubmit() bool {
	typ := strings.ToLower(e.sel.AttrOr("type", ""))
	switch goquery.NodeName(e.sel) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

func (e *element) submit(ctx context.Context, form *goquery.Selection) error {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, f *goquery.Selection) {
		name := f.AttrOr("name", "")
		switch goquery.NodeName(f) {
		case "textarea":
			values.Add(name, f.AttrOr("value", f.Text()))
		case "select":
			opt := f.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = f.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		default:
			switch strings.ToLower(f.AttrOr("type", "text")) {
			case "submit", "image", "button", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := f.Attr("checked"); !checked {
					return
				}
				values.Add(name, f.AttrOr("value", "on"))
			default:
				values.Add(name, f.AttrOr("value", ""))
			}
		}
	})
	if name, ok := e.sel.Attr("name"); ok && name != "" {
		values.Add(name, e.sel.AttrOr("value", ""))
	}

	action, err := e.browser.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}

	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		return e.browser.postForm(ctx, action, values)
	}
	target, err := url.Parse(action)
	if err != nil {
		return err
	}
	target.RawQuery = values.Encode()
	target.Fragment = ""
	return e.browser.LoadURL(ctx, target.String())
}
