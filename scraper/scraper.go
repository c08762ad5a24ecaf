// Package scraper walks a range of tululu book ids and downloads each book.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

// Getter fetches a URL. *fetch.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// AssetStore persists downloaded files. *storage.Assets satisfies it.
type AssetStore interface {
	SaveText(body []byte, title string) (string, error)
	SaveImage(ctx context.Context, imageURL string, bookID int) (string, error)
}

// Catalog receives the record of every saved book. *pipeline.Pipeline
// satisfies it.
type Catalog interface {
	Process(books ...*models.Book) error
}

// Progress is advanced once per identifier.
type Progress interface {
	Add(n int) error
}

// Outcome is the result of processing one identifier. Book is set only for
// OutcomeSaved, Err for every other kind.
type Outcome struct {
	Kind   OutcomeKind
	BookID int
	Book   *models.Book
	Err    error
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithOutput redirects the success and fault streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Scraper) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithCatalog records saved books into c.
func WithCatalog(c Catalog) Option {
	return func(s *Scraper) { s.catalog = c }
}

// WithProgress reports per-identifier progress to p.
func WithProgress(p Progress) Option {
	return func(s *Scraper) { s.progress = p }
}

// WithMetrics replaces the default metrics bundle.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) { s.Metrics = m }
}

// WithSleep replaces the back-off pause.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scraper) { s.sleep = sleep }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *Scraper) { s.runID = id }
}

// Scraper drives the per-identifier download state machine.
type Scraper struct {
	cfg      *config.Config
	getter   Getter
	assets   AssetStore
	catalog  Catalog
	progress Progress
	Metrics  *Metrics

	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	sleep  func(ctx context.Context, d time.Duration) error
	runID  string
}

// New builds a scraper. logger may be nil, in which case slog.Default is used.
func New(cfg *config.Config, getter Getter, assets AssetStore, logger *slog.Logger, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if getter == nil || assets == nil {
		return nil, fmt.Errorf("getter and asset store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scraper{
		cfg:     cfg,
		getter:  getter,
		assets:  assets,
		Metrics: NewMetrics(),
		logger:  logger,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.logger = s.logger.With(slog.String("run_id", s.runID))
	return s, nil
}

// RunID identifies this scraper's run in logs and catalog records.
func (s *Scraper) RunID() string {
	return s.runID
}

// Run processes ids in [start, end) in ascending order. Per-identifier
// faults never stop the range; only ctx cancellation does, in which case the
// partial result is returned with Interrupted set.
func (s *Scraper) Run(ctx context.Context, start, end int) (*models.RunResult, error) {
	if start > end {
		return nil, fmt.Errorf("start id %d is greater than end id %d", start, end)
	}

	result := &models.RunResult{
		RunID:        s.runID,
		StartID:      start,
		EndID:        end,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	s.logger.Info("starting range",
		slog.Int("start_id", start),
		slog.Int("end_id", end),
	)

	for id := start; id < end; id++ {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		outcome := s.ProcessID(ctx, id)
		if outcome.Kind != OutcomeSaved && ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		if !s.report(ctx, outcome, result) {
			result.Interrupted = true
			break
		}

		if s.progress != nil {
			if err := s.progress.Add(1); err != nil {
				s.logger.Debug("progress update failed", slog.Any("error", err))
			}
		}
	}

	result.EndTime = time.Now()
	s.logger.Info("range finished",
		slog.Int("processed", result.Processed),
		slog.Int("saved", result.Saved),
		slog.Int("absent", result.Absent),
		slog.Int("network_faults", result.NetworkFaults),
		slog.Int("parse_faults", result.ParseFaults),
		slog.Int("failed", result.Failed),
		slog.Int("backoffs", result.Backoffs),
		slog.Bool("interrupted", result.Interrupted),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}

// ProcessID downloads the text, page and cover of one book.
func (s *Scraper) ProcessID(ctx context.Context, id int) Outcome {
	text, err := s.getChecked(ctx, "text", s.cfg.TextURL(id))
	if err != nil {
		return failure(id, err)
	}

	page, err := s.getChecked(ctx, "page", s.cfg.PageURL(id))
	if err != nil {
		return failure(id, err)
	}

	book, err := parser.ParsePage(page.Body)
	if err != nil {
		return failure(id, fmt.Errorf("parse page of book %d: %w", id, err))
	}
	book.ID = id
	book.RunID = s.runID

	imageURL, err := resolveURL(page.FinalURL, book.ImageSource)
	if err != nil {
		return failure(id, err)
	}
	book.ImageURL = imageURL

	if book.TextPath, err = s.assets.SaveText(text.Body, book.Title); err != nil {
		return failure(id, fmt.Errorf("save text of book %d: %w", id, err))
	}

	s.Metrics.IncRequest("image")
	if book.ImagePath, err = s.assets.SaveImage(ctx, imageURL, id); err != nil {
		return failure(id, fmt.Errorf("save image of book %d: %w", id, err))
	}

	book.ScrapedAt = time.Now().UTC()
	return Outcome{Kind: OutcomeSaved, BookID: id, Book: book}
}

// getChecked issues one GET and applies the redirect check. A redirect wins over
// a status error so that a redirect onto a missing page still reads as an
// absent book.
func (s *Scraper) getChecked(ctx context.Context, resource, rawURL string) (*fetch.Response, error) {
	s.Metrics.IncRequest(resource)
	resp, err := s.getter.Get(ctx, rawURL)
	if redirectErr := fetch.CheckRedirect(resp); redirectErr != nil {
		return nil, redirectErr
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Scraper) report(ctx context.Context, outcome Outcome, result *models.RunResult) bool {
	result.Processed++
	s.Metrics.IncOutcome(outcome.Kind)
	logger := s.logger.With(slog.Int("book_id", outcome.BookID))

	if outcome.Kind == OutcomeSaved {
		result.Saved++
		s.Metrics.IncBooksSaved()
		fmt.Fprintf(s.stdout, "Название: %s\nАвтор: %s\n", outcome.Book.Title, outcome.Book.Author)
		logger.Info("book saved",
			slog.String("title", outcome.Book.Title),
			slog.String("text_path", outcome.Book.TextPath),
			slog.String("image_path", outcome.Book.ImagePath),
		)
		if s.catalog != nil {
			if err := s.catalog.Process(outcome.Book); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
				logger.Error("catalog record failed", slog.Any("error", err))
			}
		}
		return true
	}

	label := errorTypeLabel(outcome.Err)
	result.ErrorsByType[label]++
	s.Metrics.IncError(label)
	fmt.Fprintf(s.stderr, "%v\n\n", outcome.Err)

	switch outcome.Kind {
	case OutcomeAbsent, OutcomeHTTPStatus:
		result.Absent++
		logger.Info("book unavailable", slog.String("category", label), slog.Any("error", outcome.Err))
	case OutcomeNetwork:
		result.NetworkFaults++
		logger.Warn("network fault, backing off",
			slog.Any("error", outcome.Err),
			slog.Duration("backoff", s.cfg.NetworkBackoff),
		)
		result.Backoffs++
		s.Metrics.IncBackoffs()
		if err := s.sleep(ctx, s.cfg.NetworkBackoff); err != nil {
			return false
		}
	case OutcomeParse:
		result.ParseFaults++
		logger.Error("book page malformed", slog.Any("error", outcome.Err))
	default:
		result.Failed++
		logger.Error("book failed", slog.String("category", label), slog.Any("error", outcome.Err))
	}
	return true
}

func failure(id int, err error) Outcome {
	return Outcome{Kind: outcomeKind(err), BookID: id, Err: err}
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse image src %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
