package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/pkg/identity"
	"github.com/user/listing-scraper/pkg/utils"
)

// Options configures the Chrome process behind a ChromedpBrowser.
type Options struct {
	Headless        bool
	PageLoadTimeout time.Duration
}

// ChromedpBrowser drives one Chrome tab. Restart replaces the whole Chrome
// process, so every session starts with an empty temporary profile.
type ChromedpBrowser struct {
	opts    Options
	rotator *identity.Rotator
	logger  *zap.Logger

	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// NewChromedpBrowser starts Chrome and opens a tab.
func NewChromedpBrowser(opts Options, rotator *identity.Rotator, logger *zap.Logger) (*ChromedpBrowser, error) {
	b := &ChromedpBrowser{
		opts:    opts,
		rotator: rotator,
		logger:  logger,
	}
	if err := b.start(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ChromedpBrowser) start() error {
	id := b.rotator.Next()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(id.UserAgent),
	)
	if id.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(id.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.logger.Sugar().Debugf),
		chromedp.WithErrorf(b.logger.Sugar().Debugf),
	)

	// The first Run launches the browser and binds its lifetime to tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to start chrome: %w", err)
	}

	b.tabCtx, b.tabCancel, b.allocCancel = tabCtx, tabCancel, allocCancel
	b.logger.Debug("chrome started", zap.Bool("headless", b.opts.Headless), zap.String("proxy", id.Proxy))
	return nil
}

func (b *ChromedpBrowser) stop() {
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.tabCtx, b.tabCancel, b.allocCancel = nil, nil, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (b *ChromedpBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	b.mu.Lock()
	tabCtx := b.tabCtx
	b.mu.Unlock()
	if tabCtx == nil {
		return errors.New("browser is not running")
	}

	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (b *ChromedpBrowser) LoadURL(ctx context.Context, rawURL string) error {
	if err := b.run(ctx, b.opts.PageLoadTimeout, chromedp.Navigate(rawURL)); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, rawURL, err)
	}
	return nil
}

func (b *ChromedpBrowser) FindElement(ctx context.Context, sel repository.Selector) (repository.Element, error) {
	els, err := b.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrElementNotFound, sel)
	}
	return els[0], nil
}

func (b *ChromedpBrowser) FindAll(ctx context.Context, sel repository.Selector) ([]repository.Element, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, b.opts.PageLoadTimeout,
		chromedp.Nodes(sel.CSS(), &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}
	return b.wrap(nodes), nil
}

func (b *ChromedpBrowser) WaitVisible(ctx context.Context, sel repository.Selector, timeout time.Duration) (repository.Element, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, timeout,
		chromedp.WaitVisible(sel.CSS(), chromedp.ByQuery),
		chromedp.Nodes(sel.CSS(), &nodes, chromedp.ByQuery),
	)
	if err != nil {
		return nil, b.waitError(ctx, sel, err)
	}
	return b.wrap(nodes)[0], nil
}

func (b *ChromedpBrowser) WaitPresentAll(ctx context.Context, sel repository.Selector, timeout time.Duration) ([]repository.Element, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, timeout, chromedp.Nodes(sel.CSS(), &nodes, chromedp.ByQueryAll))
	if err != nil {
		return nil, b.waitError(ctx, sel, err)
	}
	return b.wrap(nodes), nil
}

func (b *ChromedpBrowser) waitError(ctx context.Context, sel repository.Selector, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", repository.ErrWaitTimeout, sel)
	}
	return err
}

// Restart closes Chrome and launches a new instance with a new identity.
func (b *ChromedpBrowser) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop()
	return b.start()
}

func (b *ChromedpBrowser) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop()
	return nil
}

func (b *ChromedpBrowser) currentURL(ctx context.Context) (*url.URL, error) {
	var loc string
	if err := b.run(ctx, b.opts.PageLoadTimeout, chromedp.Location(&loc)); err != nil {
		return nil, err
	}
	return url.Parse(loc)
}

func (b *ChromedpBrowser) wrap(nodes []*cdp.Node) []repository.Element {
	els := make([]repository.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &element{browser: b, ids: []cdp.NodeID{n.NodeID}})
	}
	return els
}

// element addresses a DOM node by ID. IDs go stale after navigation.
type element struct {
	browser *ChromedpBrowser
	ids     []cdp.NodeID
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.browser.run(ctx, e.browser.opts.PageLoadTimeout, chromedp.Text(e.ids, &text, chromedp.ByNodeID))
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	err := e.browser.run(ctx, e.browser.opts.PageLoadTimeout, chromedp.AttributeValue(e.ids, name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", repository.ErrAttributeMissing, name)
	}
	if name != "href" {
		return value, nil
	}

	base, err := e.browser.currentURL(ctx)
	if err != nil {
		return "", err
	}
	return utils.ToAbsoluteURL(base, value)
}

func (e *element) Click(ctx context.Context) error {
	return e.browser.run(ctx, e.browser.opts.PageLoadTimeout, chromedp.Click(e.ids, chromedp.ByNodeID))
}

func (e *element) SendKeys(ctx context.Context, keys string) error {
	return e.browser.run(ctx, e.browser.opts.PageLoadTimeout, chromedp.SendKeys(e.ids, keys, chromedp.ByNodeID))
}
