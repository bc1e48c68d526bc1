// Package fetcher downloads a web page and extracts its readable text as
// markdown.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 5 << 20
	userAgent       = "ai-factcheck-be/1.0 (+content-fetcher)"
)

var (
	ErrInvalidURL = errors.New("fetcher: url must be absolute http or https")
	ErrNotHTML    = errors.New("fetcher: response is not html or text")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: %s returned status %d", e.URL, e.Status)
}

type Page struct {
	URL   string
	Title string
	Text  string
}

type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	converter *md.Converter
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		maxBytes:  DefaultMaxBytes,
		converter: md.NewConverter("", true, nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// noise is removed before conversion.
const noise = "script, style, noscript, iframe, svg, nav, footer, header, aside, form"

var blankLines = regexp.MustCompile(`\n{3,}`)

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.String(), Status: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, f.maxBytes)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	if strings.HasPrefix(contentType, "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("fetcher: read %s: %w", u, err)
		}
		return &Page{URL: u.String(), Text: strings.TrimSpace(string(raw))}, nil
	}
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, ErrNotHTML
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse %s: %w", u, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(noise).Remove()

	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	text := f.converter.Convert(content)
	text = blankLines.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	return &Page{URL: u.String(), Title: title, Text: text}, nil
}
