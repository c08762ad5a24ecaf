// Package parser extracts book metadata from tululu detail pages.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

const (
	headingSelector = "body h1"
	commentSelector = ".texts"
	genreSelector   = "span.d_book a"
	coverSelector   = ".bookimage img"

	titleAuthorSeparator = "::"
)

// ParseError reports a detail page whose markup does not have the expected shape.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Errorf("parse %s: %w", e.Field, e.Err).Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParsePage builds a Book from the raw HTML of a detail page. The caller
// owns ID and everything that depends on the page URL.
func ParsePage(html []byte) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Field: "document", Err: err}
	}

	title, author, err := splitHeading(doc)
	if err != nil {
		return nil, err
	}

	comments := make([]string, 0)
	doc.Find(commentSelector).Each(func(_ int, s *goquery.Selection) {
		span := s.Find("span").First()
		if span.Length() == 0 {
			comments = append(comments, "")
			return
		}
		comments = append(comments, span.Text())
	})

	genres := make([]string, 0)
	doc.Find(genreSelector).Each(func(_ int, s *goquery.Selection) {
		genres = append(genres, s.Text())
	})

	cover := doc.Find(coverSelector).First()
	if cover.Length() == 0 {
		return nil, &ParseError{Field: "cover", Err: fmt.Errorf("no element matches %q", coverSelector)}
	}
	src, ok := cover.Attr("src")
	if !ok {
		return nil, &ParseError{Field: "cover", Err: fmt.Errorf("image has no src attribute")}
	}

	return &models.Book{
		Title:       title,
		Author:      author,
		Comments:    comments,
		Genres:      genres,
		ImageSource: src,
	}, nil
}

func splitHeading(doc *goquery.Document) (string, string, error) {
	heading := doc.Find(headingSelector).First()
	if heading.Length() == 0 {
		return "", "", &ParseError{Field: "heading", Err: fmt.Errorf("no element matches %q", headingSelector)}
	}

	parts := strings.Split(heading.Text(), titleAuthorSeparator)
	if len(parts) != 2 {
		return "", "", &ParseError{
			Field: "heading",
			Err:   fmt.Errorf("expected one %q separator in %q", titleAuthorSeparator, heading.Text()),
		}
	}

	title := NormalizeText(SanitizeFilename(parts[0]))
	author := NormalizeText(SanitizeFilename(parts[1]))
	if title == "" || author == "" {
		return "", "", &ParseError{Field: "heading", Err: fmt.Errorf("empty title or author in %q", heading.Text())}
	}
	return title, author, nil
}

// ValidateBook ensures the parser captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if b.ID < 0 {
		return fmt.Errorf("book id %d is negative", b.ID)
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book %d missing title", b.ID)
	}
	if strings.TrimSpace(b.Author) == "" {
		return fmt.Errorf("book missing author for %s", b.Title)
	}
	return nil
}

// NormalizeText trims surrounding whitespace, including the non-breaking
// spaces tululu puts around the heading separator.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
