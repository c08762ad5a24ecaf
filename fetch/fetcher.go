// Package fetch wraps a colly collector into a blocking, one-request-at-a-time
// HTTP getter that records the redirect chain of every response.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-tululu/config"
)

const maxRedirects = 10

// Response is a completed GET request.
type Response struct {
	URL        string
	FinalURL   string
	History    []string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Observer receives the latency and outcome of every request.
type Observer interface {
	ObserveFetch(d time.Duration, err error)
}

// Fetcher issues GET requests through a colly collector.
type Fetcher struct {
	collector *colly.Collector
	observer  Observer

	// serialises requests: the redirect recorder lives on the shared backend.
	mu sync.Mutex
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(0),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
	})

	return &Fetcher{collector: collector}, nil
}

// WithTransport replaces the HTTP transport, mainly for tests.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

// SetObserver installs a hook called after every request.
func (f *Fetcher) SetObserver(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = o
}

// Get fetches rawURL. A transport failure is returned as *NetworkError and a
// non-2xx answer as *StatusError together with the response. A redirect
// chain cut short by the hop limit is returned without error so the caller's
// redirect check sees it.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid url %q: scheme and host are required", rawURL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.collector.Clone()

	var history []string
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		history = make([]string, 0, len(via))
		for _, hop := range via {
			history = append(history, hop.URL.String())
		}
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	})

	var resp *Response
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
		if r.Headers != nil {
			resp.Header = r.Headers.Clone()
		}
	})

	start := time.Now()
	err = c.Visit(rawURL)
	err = classify(rawURL, err)
	if err == nil && resp == nil {
		err = fmt.Errorf("no response received for %s", rawURL)
	}
	if err == nil {
		resp.History = history
		if !successful(resp) {
			err = &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
	}
	if f.observer != nil {
		f.observer.ObserveFetch(time.Since(start), err)
	}
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return resp, err
		}
		return nil, err
	}
	return resp, nil
}

func successful(resp *Response) bool {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}
	return resp.StatusCode >= 300 && resp.StatusCode < 400 && len(resp.History) > 0
}

func classify(rawURL string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) || errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrForbiddenURL) || errors.Is(err, colly.ErrMissingURL) {
		return fmt.Errorf("request to %s refused: %w", rawURL, err)
	}
	return &NetworkError{URL: rawURL, Err: err}
}
