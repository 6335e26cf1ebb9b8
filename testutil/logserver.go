package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockLogServer serves a directory listing at / and archive bodies at /<name>.
type MockLogServer struct {
	*httptest.Server

	mu       sync.Mutex
	archives map[string][]byte
	order    []string
	extra    []string
	status   map[string]int
	requests []string
}

// NewMockLogServer starts a log server that is closed when the test ends.
func NewMockLogServer(t *testing.T) *MockLogServer {
	t.Helper()
	m := &MockLogServer{
		archives: make(map[string][]byte),
		status:   make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// AddArchive registers an archive body; it is listed in registration order.
func (m *MockLogServer) AddArchive(name string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archives[name]; !ok {
		m.order = append(m.order, name)
	}
	m.archives[name] = body
}

// AddListingEntry lists a link that has no archive behind it.
func (m *MockLogServer) AddListingEntry(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra = append(m.extra, name)
}

// FailArchive makes requests for name answer with the given status.
// The empty name fails the listing itself.
func (m *MockLogServer) FailArchive(name string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[name] = status
}

// Requests returns the request paths seen so far, without the leading slash.
func (m *MockLogServer) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// URL returns the listing URL with a trailing slash.
func (m *MockLogServer) URL() string { return m.Server.URL + "/" }

func (m *MockLogServer) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	m.mu.Lock()
	m.requests = append(m.requests, name)
	body, ok := m.archives[name]
	status, failing := m.status[name]
	listing := m.listingLocked()
	m.mu.Unlock()

	if failing {
		http.Error(w, "mock failure", status)
		return
	}
	if name == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listing)) //nolint:errcheck // test mock response
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(body) //nolint:errcheck // test mock response
}

func (m *MockLogServer) listingLocked() string {
	var b strings.Builder
	b.WriteString("<html><head><title>Index of /logs/lisp</title></head><body>\n")
	b.WriteString("<h1>Index of /logs/lisp</h1>\n<table>\n")
	b.WriteString(`<tr><th><a href="?C=N;O=D">Name</a></th><th>Last modified</th></tr>` + "\n")
	b.WriteString(`<tr><td><a href="/~nef/logs/">Parent Directory</a></td><td>-</td></tr>` + "\n")
	for _, name := range append(append([]string{}, m.order...), m.extra...) {
		fmt.Fprintf(&b, "<tr><td><a href=%q>%s</a></td><td>2015-01-02 00:00</td></tr>\n", name, name)
	}
	b.WriteString("</table>\n<address>Apache Server</address></body></html>\n")
	return b.String()
}
