// Package archive downloads daily IRC log archives and drives them, in order,
// through a chat.Session.
//
// An HTTPFetcher reads the directory listing page and individual archive files.
// The Driver selects which archives to import, fetches them with bounded
// read-ahead, and applies each archive's lines strictly in listing order.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultUserAgent identifies the importer to log servers.
const DefaultUserAgent = "irc-tender/1.0 (+https://github.com/onnwee/irc-tender)"

// DefaultMaxArchiveBytes caps a single archive download.
const DefaultMaxArchiveBytes = 64 << 20

// ErrArchiveTooLarge is returned when a response body exceeds the fetcher's cap.
var ErrArchiveTooLarge = errors.New("archive exceeds size limit")

// Fetcher returns the decoded lines of one archive.
type Fetcher interface {
	Lines(ctx context.Context, name string) ([]string, error)
}

// HTTPFetcher fetches the archive listing and archives from a base URL.
type HTTPFetcher struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
	// MaxBytes overrides DefaultMaxArchiveBytes when positive.
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with a per-request timeout.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: DefaultUserAgent,
	}
}

// ListArchives returns the link text of every anchor inside a table cell of
// the listing page, in document order. Filtering is left to the Driver.
func (f *HTTPFetcher) ListArchives(ctx context.Context) ([]string, error) {
	body, err := f.get(ctx, f.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch archive listing: %w", err)
	}
	names, err := ParseListing(body)
	if err != nil {
		return nil, fmt.Errorf("parse archive listing: %w", err)
	}
	return names, nil
}

// Lines downloads one archive and decodes it into lines.
func (f *HTTPFetcher) Lines(ctx context.Context, name string) ([]string, error) {
	u, err := url.JoinPath(f.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("archive url for %q: %w", name, err)
	}
	body, err := f.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch archive %s: %w", name, err)
	}
	return DecodeLines(body), nil
}

func (f *HTTPFetcher) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxArchiveBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrArchiveTooLarge, limit)
	}
	return body, nil
}

// ParseListing extracts anchor texts found under <td> elements.
func ParseListing(page []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var names []string
	var walk func(n *html.Node, inCell bool)
	walk = func(n *html.Node, inCell bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "td":
				inCell = true
			case "a":
				if inCell {
					if text := nodeText(n); text != "" {
						names = append(names, text)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inCell)
		}
	}
	walk(doc, false)
	return names, nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

// DecodeLines splits content on '\n' and drops lines that are not valid UTF-8
// (plain ASCII always is). A trailing '\r' is removed, and a final line
// without a newline is kept when non-empty.
func DecodeLines(content []byte) []string {
	lines := make([]string, 0, bytes.Count(content, []byte{'\n'})+1)
	for len(content) > 0 {
		var raw []byte
		if i := bytes.IndexByte(content, '\n'); i >= 0 {
			raw, content = content[:i], content[i+1:]
		} else {
			raw, content = content, nil
		}
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if !utf8.Valid(raw) {
			continue
		}
		lines = append(lines, string(raw))
	}
	return lines
}
