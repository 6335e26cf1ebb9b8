package archive

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/irc-tender/chat"
	"github.com/onnwee/irc-tender/testutil"
)

func TestDecodeLines(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    []string
	}{
		{"ascii", []byte("a\nb\n"), []string{"a", "b"}},
		{"crlf", []byte("a\r\nb\r\n"), []string{"a", "b"}},
		{"keeps blank lines", []byte("a\n\nb\n"), []string{"a", "", "b"}},
		{"unterminated last line", []byte("a\nb"), []string{"a", "b"}},
		{"utf8", []byte("00:00:01 <jöhn> grüß\n"), []string{"00:00:01 <jöhn> grüß"}},
		{"invalid utf8 dropped", []byte("good\nbad \xff\xfe line\nalso good\n"), []string{"good", "also good"}},
		{"latin1 dropped", []byte("caf\xe9\nok\n"), []string{"ok"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeLines(tt.content))
		})
	}
}

func TestParseListing(t *testing.T) {
	page := []byte(`<html><body>
<a href="/top">outside table</a>
<table>
<tr><th><a href="?C=N">Name</a></th></tr>
<tr><td><a href="/up">Parent Directory</a></td></tr>
<tr><td><a href="14.01.01">14.01.01</a></td><td>1K</td></tr>
<tr><td><a href="junk">junk</a></td></tr>
<tr><td><img src="x.gif"><a href="14.01.02"><b>14.01.02</b></a></td></tr>
</table></body></html>`)

	names, err := ParseListing(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"Parent Directory", "14.01.01", "junk", "14.01.02"}, names)
}

func TestHTTPFetcherListAndLines(t *testing.T) {
	srv := testutil.NewMockLogServer(t)
	srv.AddArchive("15.01.01", []byte("00:00:00 --- log: started lisp/15.01.01\n00:06:42 <pjb> Cons Ignucius.\n"))
	srv.AddListingEntry("junk")

	f := NewHTTPFetcher(srv.URL(), 5*time.Second)
	ctx := context.Background()

	names, err := f.ListArchives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Parent Directory", "15.01.01", "junk"}, names)

	lines, err := f.Lines(ctx, "15.01.01")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00:00:00 --- log: started lisp/15.01.01",
		"00:06:42 <pjb> Cons Ignucius.",
	}, lines)
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := testutil.NewMockLogServer(t)
	srv.AddArchive("15.01.01", []byte("x\n"))
	srv.FailArchive("15.01.01", http.StatusBadGateway)

	f := NewHTTPFetcher(srv.URL(), 5*time.Second)
	_, err := f.Lines(context.Background(), "15.01.01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	_, err = f.Lines(context.Background(), "15.01.09")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestHTTPFetcherCanceled(t *testing.T) {
	srv := testutil.NewMockLogServer(t)
	srv.AddArchive("15.01.01", []byte("x\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPFetcher(srv.URL(), time.Second).Lines(ctx, "15.01.01")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPFetcherRejectsOversizedArchive(t *testing.T) {
	srv := testutil.NewMockLogServer(t)
	srv.AddArchive("15.01.01", []byte("00:00:01 <ann> hi\n"))
	srv.AddArchive("15.01.02", []byte("00:00:01 <ann> a much longer line\n00:00:02 <ann> cut"))

	f := NewHTTPFetcher(srv.URL(), 5*time.Second)
	f.MaxBytes = 20

	lines, err := f.Lines(context.Background(), "15.01.01")
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00:01 <ann> hi"}, lines)

	_, err = f.Lines(context.Background(), "15.01.02")
	assert.ErrorIs(t, err, ErrArchiveTooLarge)

	s := chat.NewSession(chat.IndexOptions{})
	rep, err := (&Driver{Fetcher: f, Session: s}).Run(context.Background(), []string{"15.01.01", "15.01.02"}, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, s.Stats().Messages)
}
