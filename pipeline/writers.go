package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// Catalog formats accepted by NewOutputWriter.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatDual = "dual"
)

// listSeparator joins genres and comments inside a single CSV cell.
const listSeparator = " | "

var csvHeader = []string{"id", "title", "author", "genres", "comments", "image_url", "text_path", "image_path", "run_id", "scraped_at"}

// NewOutputWriter returns the writer for format. For FormatDual the CSV and
// JSON Lines files share filename's stem.
func NewOutputWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(filename), nil
	case FormatJSON:
		return NewJSONWriter(filename), nil
	case FormatYAML:
		return NewYAMLWriter(filename), nil
	case FormatDual:
		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(stem+".csv", stem+".jsonl"), nil
	default:
		return nil, fmt.Errorf("unknown catalog format %q", format)
	}
}

// lazyFile creates its file on first use so that a run which saves nothing
// leaves no catalog behind. Each run truncates the previous catalog.
type lazyFile struct {
	filename string
	file     *os.File
}

func (lf *lazyFile) open() (*os.File, bool, error) {
	if lf.file != nil {
		return lf.file, false, nil
	}
	if err := ensureDir(lf.filename); err != nil {
		return nil, false, err
	}
	f, err := os.Create(lf.filename)
	if err != nil {
		return nil, false, fmt.Errorf("create %q: %w", lf.filename, err)
	}
	lf.file = f
	return f, true, nil
}

func (lf *lazyFile) close() error {
	if lf.file == nil {
		return nil
	}
	err := lf.file.Close()
	lf.file = nil
	return err
}

func (lf *lazyFile) validate(kind string) error {
	info, err := os.Stat(lf.filename)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	out    lazyFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter prepares a CSV writer. The header row is written together
// with the first batch.
func NewCSVWriter(filename string) *CSVWriter {
	return &CSVWriter{out: lazyFile{filename: filename}}
}

// Write appends books to the CSV output.
func (cw *CSVWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, created, err := cw.out.open()
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	if created {
		cw.writer = csv.NewWriter(f)
		if err := cw.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	for _, book := range books {
		record := []string{
			strconv.Itoa(book.ID),
			book.Title,
			book.Author,
			strings.Join(book.Genres, listSeparator),
			strings.Join(book.Comments, listSeparator),
			book.ImageURL,
			book.TextPath,
			book.ImagePath,
			book.RunID,
			book.ScrapedAt.Format(time.RFC3339),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.writer != nil {
		cw.writer.Flush()
		if err := cw.writer.Error(); err != nil {
			return fmt.Errorf("flush csv writer: %w", err)
		}
	}
	return cw.out.close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	return cw.out.validate("csv")
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	out     lazyFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter prepares the JSON Lines writer.
func NewJSONWriter(filename string) *JSONWriter {
	return &JSONWriter{out: lazyFile{filename: filename}}
}

// Write appends books in JSONL format.
func (jw *JSONWriter) Write(books []*models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	f, created, err := jw.out.open()
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	if created {
		jw.writer = bufio.NewWriter(f)
		jw.encoder = json.NewEncoder(jw.writer)
		jw.encoder.SetEscapeHTML(false)
	}

	for _, book := range books {
		if err := jw.encoder.Encode(book); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.writer != nil {
		if err := jw.writer.Flush(); err != nil {
			return fmt.Errorf("flush json writer: %w", err)
		}
	}
	return jw.out.close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return jw.out.validate("json")
}

// YAMLWriter writes one YAML document per record.
type YAMLWriter struct {
	out     lazyFile
	encoder *yaml.Encoder
	mu      sync.Mutex
}

// NewYAMLWriter prepares the YAML stream writer.
func NewYAMLWriter(filename string) *YAMLWriter {
	return &YAMLWriter{out: lazyFile{filename: filename}}
}

// Write appends books as YAML documents.
func (yw *YAMLWriter) Write(books []*models.Book) error {
	yw.mu.Lock()
	defer yw.mu.Unlock()

	f, created, err := yw.out.open()
	if err != nil {
		return fmt.Errorf("open yaml file: %w", err)
	}
	if created {
		yw.encoder = yaml.NewEncoder(f)
		yw.encoder.SetIndent(2)
	}

	for _, book := range books {
		if err := yw.encoder.Encode(book); err != nil {
			return fmt.Errorf("encode yaml record: %w", err)
		}
	}
	return nil
}

// Close terminates the YAML stream and closes the file.
func (yw *YAMLWriter) Close() error {
	yw.mu.Lock()
	defer yw.mu.Unlock()

	if yw.encoder != nil {
		if err := yw.encoder.Close(); err != nil {
			return fmt.Errorf("close yaml encoder: %w", err)
		}
		yw.encoder = nil
	}
	return yw.out.close()
}

// Validate ensures the YAML file has data.
func (yw *YAMLWriter) Validate() error {
	return yw.out.validate("yaml")
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
