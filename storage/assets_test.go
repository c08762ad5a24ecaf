package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

type stubGetter struct {
	bodies map[string][]byte
	calls  map[string]int
}

func newStubGetter() *stubGetter {
	return &stubGetter{bodies: make(map[string][]byte), calls: make(map[string]int)}
}

func (g *stubGetter) Get(_ context.Context, rawURL string) (*fetch.Response, error) {
	g.calls[rawURL]++
	body, ok := g.bodies[rawURL]
	if !ok {
		return nil, &fetch.StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return &fetch.Response{URL: rawURL, FinalURL: rawURL, StatusCode: http.StatusOK, Body: body}, nil
}

func newTestAssets(t *testing.T, getter Getter, dir string) *Assets {
	t.Helper()
	assets, err := NewAssets(getter, dir, 4)
	if err != nil {
		t.Fatalf("new assets: %v", err)
	}
	return assets
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func TestImageFilename(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		bookID int
		want   string
	}{
		{name: "jpg", url: "https://x/cover.jpg", bookID: 42, want: "42.jpg"},
		{name: "png nested", url: "https://tululu.org/files/10/cover.png", bookID: 10, want: "10.png"},
		{name: "query ignored", url: "https://tululu.org/shots/5.gif?v=2", bookID: 5, want: "5.gif"},
		{name: "no extension", url: "https://tululu.org/shots/cover", bookID: 3, want: "3"},
		{name: "placeholder", url: "https://tululu.org/images/nopic.gif", bookID: 99, want: "nopic.gif"},
		{name: "placeholder other id", url: "https://tululu.org/images/nopic.gif", bookID: 1, want: "nopic.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageFilename(tt.url, tt.bookID)
			if err != nil {
				t.Fatalf("ImageFilename(%q): %v", tt.url, err)
			}
			if got != tt.want {
				t.Fatalf("ImageFilename(%q, %d) = %q, want %q", tt.url, tt.bookID, got, tt.want)
			}
		})
	}
}

func TestSaveImageNamedByBookID(t *testing.T) {
	dir := t.TempDir()
	getter := newStubGetter()
	getter.bodies["https://x/cover.jpg"] = []byte{0xFF, 0xD8, 0xFF, 0x00}

	path, err := newTestAssets(t, getter, dir).SaveImage(context.Background(), "https://x/cover.jpg", 42)
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if want := filepath.Join(dir, "images", "42.jpg"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if data := readFile(t, path); !bytes.Equal(data, []byte{0xFF, 0xD8, 0xFF, 0x00}) {
		t.Fatalf("image bytes = %v", data)
	}
}

func TestSaveImagePlaceholderSharedAndCached(t *testing.T) {
	dir := t.TempDir()
	getter := newStubGetter()
	placeholder := "https://tululu.org/images/nopic.gif"
	getter.bodies[placeholder] = []byte("GIF89a")
	assets := newTestAssets(t, getter, dir)

	first, err := assets.SaveImage(context.Background(), placeholder, 1)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := assets.SaveImage(context.Background(), placeholder, 2)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if want := filepath.Join(dir, "images", "nopic.gif"); first != want || second != want {
		t.Fatalf("paths = %q, %q, want both %q", first, second, want)
	}
	if got := getter.calls[placeholder]; got != 1 {
		t.Fatalf("placeholder fetched %d times, want 1", got)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("read images: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("images = %d files, want 1", len(entries))
	}
}

func TestSaveImageFetchError(t *testing.T) {
	dir := t.TempDir()

	_, err := newTestAssets(t, newStubGetter(), dir).SaveImage(context.Background(), "https://x/missing.jpg", 7)
	var statusErr *fetch.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *fetch.StatusError", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, "images", "7.jpg")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("image file should not exist, stat err = %v", statErr)
	}
}

func TestSaveImageThroughFetcher(t *testing.T) {
	f, err := fetch.NewFetcher(config.DefaultConfig())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://tululu.org/shots/9.png",
		httpmock.NewBytesResponder(http.StatusOK, []byte{0x89, 'P', 'N', 'G'}).
			HeaderSet(http.Header{"Content-Type": []string{"image/png"}}))
	f.WithTransport(transport)

	path, err := newTestAssets(t, f, t.TempDir()).SaveImage(context.Background(), "https://tululu.org/shots/9.png", 9)
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if data := readFile(t, path); !bytes.Equal(data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("image bytes = %v", data)
	}
}

func TestSaveTextByteIdentical(t *testing.T) {
	dir := t.TempDir()
	body := []byte("Глава 1\r\nЖили-были дед да баба.\n")

	path, err := newTestAssets(t, newStubGetter(), dir).SaveText(body, "Сказки: том 1?")
	if err != nil {
		t.Fatalf("save text: %v", err)
	}
	if want := filepath.Join(dir, "books", "Сказки том 1.txt"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if data := readFile(t, path); !bytes.Equal(data, body) {
		t.Fatalf("text = %q, want %q", data, body)
	}
}

func TestSaveTextLongTitleFitsFilenameLimit(t *testing.T) {
	dir := t.TempDir()
	title := parser.SanitizeFilename(strings.Repeat("Ж", 127))

	path, err := newTestAssets(t, newStubGetter(), dir).SaveText([]byte("x"), title)
	if err != nil {
		t.Fatalf("save text: %v", err)
	}

	name := filepath.Base(path)
	if len(name) > parser.MaxFilenameBytes {
		t.Fatalf("file name is %d bytes, want <= %d", len(name), parser.MaxFilenameBytes)
	}
	if !strings.HasSuffix(name, ".txt") || !strings.HasPrefix(title, strings.TrimSuffix(name, ".txt")) {
		t.Fatalf("file name %q is not a prefix of the title plus .txt", name)
	}
	if data := readFile(t, path); string(data) != "x" {
		t.Fatalf("text = %q", data)
	}
}

func TestSaveTextOverwrites(t *testing.T) {
	assets := newTestAssets(t, newStubGetter(), t.TempDir())

	if _, err := assets.SaveText([]byte("a much longer first version"), "Foo"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	path, err := assets.SaveText([]byte("short"), "Foo")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if data := readFile(t, path); string(data) != "short" {
		t.Fatalf("text = %q, want short", data)
	}
}

func TestSaveTextRejectsEmptyFilename(t *testing.T) {
	if _, err := newTestAssets(t, newStubGetter(), t.TempDir()).SaveText([]byte("x"), `???`); err == nil {
		t.Fatalf("expected error for a title with no usable characters")
	}
}
