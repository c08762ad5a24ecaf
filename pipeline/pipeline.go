// Package pipeline records the metadata of saved books into a catalog file.
package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.Book) error
	Close() error
	Validate() error
}

// Stats counts what the catalog accepted and rejected.
type Stats struct {
	Processed        int64
	ValidationErrors map[string]int
}

// Pipeline validates, de-duplicates and batches records on the caller's
// goroutine. The scraper visits ids one at a time, so records reach the
// writer in range order without any hand-off.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	batch     []*models.Book

	seen  map[int]struct{}
	stats Stats

	closed bool
	err    error
}

// NewPipeline builds a pipeline that hands records to writer in batches of
// batchSize.
func NewPipeline(writer OutputWriter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		batch:     make([]*models.Book, 0, batchSize),
		seen:      make(map[int]struct{}),
		stats:     Stats{ValidationErrors: make(map[string]int)},
	}
}

// Process records books, flushing a batch to the writer whenever it fills.
// Each book is copied so the caller may reuse its value. A failed write is
// returned here and again from Close; later calls are rejected.
func (p *Pipeline) Process(books ...*models.Book) error {
	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, book := range books {
		if book == nil {
			continue
		}
		record := *book
		if !p.prepare(&record) {
			continue
		}
		p.batch = append(p.batch, &record)
		if len(p.batch) >= p.batchSize {
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the pending batch and closes the writer. It is safe to call
// more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return p.err
	}
	p.closed = true

	if p.err == nil {
		_ = p.flush()
	}
	if err := p.writer.Close(); err != nil && p.err == nil {
		p.err = fmt.Errorf("close writer: %w", err)
	}
	return p.err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	return p.err
}

// Stats returns a copy of the catalog counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:        p.stats.Processed,
		ValidationErrors: maps.Clone(p.stats.ValidationErrors),
	}
}

func (p *Pipeline) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.writer.Write(p.batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	p.batch = p.batch[:0]
	return nil
}

func (p *Pipeline) prepare(book *models.Book) bool {
	if err := parser.ValidateBook(book); err != nil {
		p.stats.ValidationErrors["invalid_record"]++
		return false
	}
	if _, ok := p.seen[book.ID]; ok {
		p.stats.ValidationErrors["duplicate_id"]++
		return false
	}
	p.seen[book.ID] = struct{}{}

	book.Title = parser.NormalizeText(book.Title)
	book.Author = parser.NormalizeText(book.Author)
	if book.ScrapedAt.IsZero() {
		book.ScrapedAt = time.Now().UTC()
	}

	p.stats.Processed++
	return true
}
