package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/extractor"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/pkg/metrics"
)

// Session outcomes, also used as the metrics label.
const (
	OutcomeCompleted   = "completed"
	OutcomeAborted     = "aborted"
	OutcomeCancelled   = "cancelled"
	OutcomeWriteFailed = "write_failed"
)

// SiteConfig holds the landing URL and the selectors of the directory site.
type SiteConfig struct {
	LandingURL    string
	ConsentButton repository.Selector
	TermInput     repository.Selector
	LocalityInput repository.Selector
	SubmitButton  repository.Selector
	ListingLinks  repository.Selector
	NextPage      repository.Selector
}

// DefaultSiteConfig returns the selectors of the yellow-pages style directory at landingURL.
func DefaultSiteConfig(landingURL string) SiteConfig {
	return SiteConfig{
		LandingURL:    landingURL,
		ConsentButton: repository.ID("onetrust-accept-btn-handler"),
		TermInput:     repository.ID("whatInput"),
		LocalityInput: repository.ID("where"),
		SubmitButton:  repository.ID("submitBtn"),
		ListingLinks:  repository.CSS(".listado-item a[title^='ver detalles de']"),
		NextPage:      repository.CSS(`ul.pagination li a[rel="next"]`),
	}
}

// TraversalConfig configures the traversal engine.
type TraversalConfig struct {
	Site        SiteConfig
	WaitTimeout time.Duration
	// SkipWriteErrors logs a failed record write and keeps going. When false
	// the session stops and Search returns the *WriteError.
	SkipWriteErrors bool
}

// WriteError is returned by Search when a record could not be persisted and
// write errors are not skipped.
type WriteError struct {
	Record entity.CompanyRecord
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write record %q: %v", e.Record.Name, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SessionResult describes a finished search session.
type SessionResult struct {
	Outcome string
	Stats   entity.SessionStats
	// Records holds every extracted record in visit order, written or not.
	Records []entity.CompanyRecord
	// Err is the error that aborted the session early, if any.
	Err      error
	Duration time.Duration
}

// Traversal runs search sessions against the directory site.
type Traversal interface {
	// Search runs one session for task, handing every extracted record to writer.
	// Session failures end the session and are reported in the result; the
	// returned error is only set for cancellation and unskipped write errors.
	// The browser is restarted before Search returns, whatever the outcome.
	Search(ctx context.Context, task entity.SearchTask, writer repository.RecordWriter) (*SessionResult, error)
}

type traversalEngine struct {
	browser        repository.Browser
	extractor      *extractor.Extractor
	failedLinkRepo repository.FailedLinkRepository
	metrics        *metrics.Metrics
	config         TraversalConfig
	logger         *zap.Logger
}

// NewTraversalEngine creates the traversal engine. failedLinkRepo may be nil.
func NewTraversalEngine(
	browser repository.Browser,
	ex *extractor.Extractor,
	failedLinkRepo repository.FailedLinkRepository,
	m *metrics.Metrics,
	config TraversalConfig,
	logger *zap.Logger,
) Traversal {
	return &traversalEngine{
		browser:        browser,
		extractor:      ex,
		failedLinkRepo: failedLinkRepo,
		metrics:        m,
		config:         config,
		logger:         logger,
	}
}

type sessionState int

const (
	stateInit sessionState = iota
	stateSubmitted
	stateListingPage
	stateNextPageOrDone
	stateFinished
)

func (s sessionState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateSubmitted:
		return "submitted"
	case stateListingPage:
		return "listing_page"
	case stateNextPageOrDone:
		return "next_page_or_done"
	case stateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// session is the mutable state of one Search call.
type session struct {
	*traversalEngine
	task   entity.SearchTask
	writer repository.RecordWriter
	log    *zap.Logger

	visited  map[string]struct{}
	listings map[string]struct{}
	nextURL  string
	result   SessionResult
}

func (e *traversalEngine) Search(ctx context.Context, task entity.SearchTask, writer repository.RecordWriter) (*SessionResult, error) {
	s := &session{
		traversalEngine: e,
		task:            task,
		writer:          writer,
		log:             e.logger.With(zap.String("term", task.Term), zap.String("locality", task.Locality)),
		visited:         make(map[string]struct{}),
		listings:        make(map[string]struct{}),
	}

	start := time.Now()
	s.log.Info("search session started")
	err := s.run(ctx)
	s.result.Duration = time.Since(start)

	switch {
	case err == nil:
		s.result.Outcome = OutcomeCompleted
	case ctx.Err() != nil:
		s.result.Outcome = OutcomeCancelled
		s.result.Err = ctx.Err()
		err = ctx.Err()
	case errors.As(err, new(*WriteError)):
		s.result.Outcome = OutcomeWriteFailed
		s.result.Err = err
	default:
		s.result.Outcome = OutcomeAborted
		s.result.Err = err
		s.log.Error("search session aborted", zap.Error(err))
		err = nil
	}

	// Cookies and storage must not leak into the next search, even after cancellation.
	if rerr := e.browser.Restart(context.WithoutCancel(ctx)); rerr != nil {
		s.log.Error("failed to restart browser", zap.Error(rerr))
	}

	e.metrics.SessionsTotal.WithLabelValues(s.result.Outcome).Inc()
	e.metrics.SessionDuration.Observe(s.result.Duration.Seconds())
	s.log.Info("search session finished",
		zap.String("outcome", s.result.Outcome),
		zap.Int("links_visited", s.result.Stats.LinksVisited),
		zap.Int("records_written", s.result.Stats.RecordsWritten),
		zap.Duration("duration", s.result.Duration),
	)
	return &s.result, err
}

func (s *session) run(ctx context.Context) error {
	state := stateInit
	for state != stateFinished {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.log.Debug("session state", zap.Stringer("state", state))

		var err error
		state, err = s.step(ctx, state)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) step(ctx context.Context, state sessionState) (sessionState, error) {
	switch state {
	case stateInit:
		return stateSubmitted, s.openLanding(ctx)
	case stateSubmitted:
		return stateListingPage, s.submitSearch(ctx)
	case stateListingPage:
		links := s.collectLinks(ctx)
		if len(links) == 0 {
			return stateFinished, nil
		}
		s.nextURL = s.findNextPage(ctx)
		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return stateFinished, err
			}
			if _, seen := s.visited[link]; seen {
				continue
			}
			if err := s.visitDetail(ctx, link); err != nil {
				return stateFinished, err
			}
		}
		return stateNextPageOrDone, nil
	case stateNextPageOrDone:
		if s.nextURL == "" {
			return stateFinished, nil
		}
		if _, seen := s.listings[s.nextURL]; seen {
			s.log.Warn("pagination points back to a visited listing page", zap.String("url", s.nextURL))
			return stateFinished, nil
		}
		s.listings[s.nextURL] = struct{}{}
		if err := s.browser.LoadURL(ctx, s.nextURL); err != nil {
			return stateFinished, fmt.Errorf("failed to load next listing page: %w", err)
		}
		return stateListingPage, nil
	default:
		return stateFinished, nil
	}
}

func (s *session) openLanding(ctx context.Context) error {
	if err := s.browser.LoadURL(ctx, s.config.Site.LandingURL); err != nil {
		return fmt.Errorf("failed to load landing page: %w", err)
	}

	consent, err := s.browser.WaitVisible(ctx, s.config.Site.ConsentButton, s.config.WaitTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Debug("no consent prompt", zap.Error(err))
		return nil
	}
	if err := consent.Click(ctx); err != nil {
		s.log.Warn("failed to dismiss consent prompt", zap.Error(err))
	}
	return nil
}

func (s *session) submitSearch(ctx context.Context) error {
	for _, input := range []struct {
		sel   repository.Selector
		value string
	}{
		{s.config.Site.TermInput, s.task.Term},
		{s.config.Site.LocalityInput, s.task.Locality},
	} {
		el, err := s.browser.WaitVisible(ctx, input.sel, s.config.WaitTimeout)
		if err != nil {
			return fmt.Errorf("search input %s: %w", input.sel, err)
		}
		if err := el.SendKeys(ctx, input.value); err != nil {
			return fmt.Errorf("failed to type into %s: %w", input.sel, err)
		}
	}

	submit, err := s.browser.WaitVisible(ctx, s.config.Site.SubmitButton, s.config.WaitTimeout)
	if err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}
	return nil
}

// collectLinks returns the detail links of the current listing page in
// document order without repeats. A wait timeout yields no links.
func (s *session) collectLinks(ctx context.Context) []string {
	els, err := s.browser.WaitPresentAll(ctx, s.config.Site.ListingLinks, s.config.WaitTimeout)
	if err != nil {
		s.log.Warn("no listing entries found", zap.Error(err))
		return nil
	}
	s.result.Stats.ListingPages++
	s.metrics.ListingPages.Inc()

	seen := make(map[string]struct{}, len(els))
	links := make([]string, 0, len(els))
	for _, el := range els {
		href, err := el.Attribute(ctx, "href")
		if err != nil || href == "" {
			s.log.Debug("listing entry without link", zap.Error(err))
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		links = append(links, href)
	}
	s.log.Info("listing page scanned", zap.Int("links", len(links)), zap.Int("page", s.result.Stats.ListingPages))
	return links
}

// findNextPage reads the pagination target while the listing page is still loaded.
func (s *session) findNextPage(ctx context.Context) string {
	el, err := s.browser.FindElement(ctx, s.config.Site.NextPage)
	if err != nil {
		return ""
	}
	href, err := el.Attribute(ctx, "href")
	if err != nil {
		return ""
	}
	return href
}

func (s *session) visitDetail(ctx context.Context, link string) error {
	s.visited[link] = struct{}{}
	s.result.Stats.LinksVisited++

	if err := s.browser.LoadURL(ctx, link); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.result.Stats.FailedLinks++
		s.metrics.DetailPages.WithLabelValues("failure").Inc()
		s.saveFailedLink(ctx, link, err)
		return fmt.Errorf("failed to load detail page: %w", err)
	}
	s.metrics.DetailPages.WithLabelValues("success").Inc()
	s.clearFailedLink(ctx, link)

	rec := extractor.Normalize(s.extractor.ExtractFields(ctx, s.browser), s.task.Term, s.task.Locality)
	rec.SourceURL = link
	s.result.Records = append(s.result.Records, rec)
	s.result.Stats.RecordsExtracted++

	return s.write(ctx, rec)
}

func (s *session) write(ctx context.Context, rec entity.CompanyRecord) error {
	res, err := s.writer.Write(ctx, rec)
	if err != nil {
		s.result.Stats.WriteErrors++
		s.metrics.RecordsTotal.WithLabelValues("error").Inc()
		if s.config.SkipWriteErrors {
			s.log.Error("failed to write record, skipping", zap.String("url", rec.SourceURL), zap.Error(err))
			return nil
		}
		return &WriteError{Record: rec, Err: err}
	}

	s.metrics.RecordsTotal.WithLabelValues(res.String()).Inc()
	switch res {
	case repository.Written:
		s.result.Stats.RecordsWritten++
	case repository.Duplicate:
		s.result.Stats.Duplicates++
	case repository.Invalid:
		s.result.Stats.Invalid++
		s.log.Debug("record missing essential fields", zap.String("url", rec.SourceURL))
	}
	return nil
}

func (s *session) saveFailedLink(ctx context.Context, link string, cause error) {
	if s.failedLinkRepo == nil {
		return
	}
	failed := &entity.FailedLink{
		URL:                  link,
		SearchTerm:           s.task.Term,
		Locality:             s.task.Locality,
		FailureReason:        cause.Error(),
		LastAttemptTimestamp: time.Now(),
	}
	if err := s.failedLinkRepo.SaveOrUpdate(ctx, failed); err != nil {
		s.log.Warn("failed to record failed link", zap.String("url", link), zap.Error(err))
	}
}

func (s *session) clearFailedLink(ctx context.Context, link string) {
	if s.failedLinkRepo == nil {
		return
	}
	if err := s.failedLinkRepo.Delete(ctx, link); err != nil {
		// This is not a critical error, just log it.
		s.log.Warn("failed to clear failed link after successful visit", zap.String("url", link), zap.Error(err))
	}
}
