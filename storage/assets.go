// Package storage persists downloaded book texts and cover images.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

const (
	ImageDir = "images"
	TextDir  = "books"

	// PlaceholderImage is the file tululu serves for books without a cover.
	PlaceholderImage = "nopic.gif"

	textExt = ".txt"
)

// Getter fetches a URL. *fetch.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Assets writes book files below a base directory.
type Assets struct {
	getter  Getter
	baseDir string
	shared  *lru.Cache[string, []byte]
}

// NewAssets creates an Assets rooted at baseDir. cacheSize bounds the number
// of shared placeholder images kept in memory.
func NewAssets(getter Getter, baseDir string, cacheSize int) (*Assets, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is nil")
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create placeholder cache: %w", err)
	}
	return &Assets{getter: getter, baseDir: baseDir, shared: cache}, nil
}

// SaveImage downloads imageURL into images/ and returns the written path.
// Placeholder covers share one file; every other cover is named after the
// book id with the extension of the URL path.
func (a *Assets) SaveImage(ctx context.Context, imageURL string, bookID int) (string, error) {
	name, err := ImageFilename(imageURL, bookID)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(a.baseDir, ImageDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %q: %w", dir, err)
	}

	body, err := a.imageBytes(ctx, imageURL, name == PlaceholderImage)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, name)
	if err := writeFile(target, body); err != nil {
		return "", err
	}
	return target, nil
}

// SaveText writes an already downloaded text body to books/{title}.txt.
func (a *Assets) SaveText(body []byte, title string) (string, error) {
	filename := strings.TrimSpace(parser.SanitizeFilenameLimit(title, parser.MaxFilenameBytes-len(textExt)))
	if filename == "" {
		return "", fmt.Errorf("title %q has no usable filename characters", title)
	}

	dir := filepath.Join(a.baseDir, TextDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %q: %w", dir, err)
	}

	target := filepath.Join(dir, filename+textExt)
	if err := writeFile(target, body); err != nil {
		return "", err
	}
	return target, nil
}

// ImageFilename derives the stored file name for a cover URL.
func ImageFilename(imageURL string, bookID int) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url %q: %w", imageURL, err)
	}
	if strings.HasSuffix(parsed.Path, PlaceholderImage) {
		return PlaceholderImage, nil
	}
	return strconv.Itoa(bookID) + path.Ext(path.Base(parsed.Path)), nil
}

func (a *Assets) imageBytes(ctx context.Context, imageURL string, shared bool) ([]byte, error) {
	if shared {
		if body, ok := a.shared.Get(imageURL); ok {
			return body, nil
		}
	}

	resp, err := a.getter.Get(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}

	if shared {
		a.shared.Add(imageURL, resp.Body)
	}
	return resp.Body, nil
}

func writeFile(target string, body []byte) (err error) {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %q: %w", target, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %q: %w", target, closeErr)
		}
	}()

	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("write %q: %w", target, err)
	}
	return nil
}
