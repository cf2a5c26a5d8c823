package parser

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/sanitize"
)

func loadDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // read-only fixture
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func docFromString(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestListThreadsOrdersByActivity(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://forum.example/whats-new")
	require.NoError(t, err)

	threads := ListThreads(loadDoc(t, "listing.html"), base)
	require.Len(t, threads, 4)

	var ids []string
	for _, th := range threads {
		ids = append(ids, th.ThreadID)
	}
	require.Equal(t, []string{"100/latest", "101/latest", "102/latest", "103/latest"}, ids)

	require.Nil(t, threads[0].LatestActivity)
	require.Equal(t, "https://forum.example/t/khong-co-ngay.100/latest", threads[0].URL)
	require.Equal(t, "Thread T1", threads[1].Title)
	require.Equal(t, "2024-05-01T10:00:00Z", threads[1].DateLiteral)
	require.Equal(t, "Thread T2", threads[2].Title)
	require.True(t, threads[3].LatestActivity.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
}

func TestListThreadsSkipsContainersWithoutLatestLink(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://forum.example/whats-new")
	require.NoError(t, err)
	for _, th := range ListThreads(loadDoc(t, "listing.html"), base) {
		require.NotContains(t, th.URL, "no-latest.999")
	}
}

func TestListThreadsCheckedReportsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ListThreadsChecked(docFromString(t, "<html><body><p>maintenance</p></body></html>"), nil)
	require.True(t, errors.Is(err, forum.ErrMalformedDocument))

	base, err := url.Parse("https://forum.example/whats-new")
	require.NoError(t, err)
	threads, err := ListThreadsChecked(loadDoc(t, "listing.html"), base)
	require.NoError(t, err)
	require.Len(t, threads, 4)
}

func TestListThreadsRelativeLinkWithoutBase(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<div class="structItem structItem--thread">
		<div class="structItem-cell structItem-cell--latest"><a href="/t/a.1/latest">x</a></div></div>`)
	require.Empty(t, ListThreads(doc, nil))
}

func TestSortThreads(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	threads := []forum.ThreadSummary{
		{ThreadID: "none"},
		{ThreadID: "t1", LatestActivity: &t1},
		{ThreadID: "t3", LatestActivity: &t3},
		{ThreadID: "t2", LatestActivity: &t2},
	}
	SortThreads(threads)

	var got []string
	for _, th := range threads {
		got = append(got, th.ThreadID)
	}
	require.Equal(t, []string{"none", "t1", "t2", "t3"}, got)
}

func TestExtractMessages(t *testing.T) {
	t.Parallel()

	const threadURL = "https://forum.example/t/card.555/page-3"
	messages := ExtractMessages(loadDoc(t, "thread.html"), threadURL)
	require.Len(t, messages, 4)

	var authors []string
	for _, m := range messages {
		authors = append(authors, m.AuthorName)
		require.Equal(t, "555/page-3", m.ThreadID)
		require.Equal(t, threadURL, m.ThreadURL)
	}
	require.Equal(t, []string{"nobody", "alpha", "beta", "gamma"}, authors)

	require.True(t, messages[0].PostedAt.IsZero())
	require.Equal(t, "not a time", messages[0].PostedLiteral)
	require.Equal(t, "first post", messages[1].RawText)
	require.Equal(t, "second post", messages[2].RawText)

	gamma := messages[3]
	require.Equal(t, "2024-05-01T17:05:00+0700", gamma.PostedLiteral)
	require.True(t, gamma.PostedAt.Equal(time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)))
	require.NotContains(t, gamma.RawText, "quoted words")
	require.NotContains(t, gamma.RawText, "beta said")
	require.Contains(t, gamma.RawText, "lightbox_close")
	require.Equal(t, "Mấy con card   hết thời bú điện như nước", sanitize.Clean(gamma.RawText))
}

func TestExtractMessagesCheckedReportsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ExtractMessagesChecked(docFromString(t, "<html><body>Access denied</body></html>"), "https://forum.example/t/a.1/")
	require.ErrorIs(t, err, forum.ErrMalformedDocument)
}

func TestExtractMessagesMissingParts(t *testing.T) {
	t.Parallel()

	doc := docFromString(t, `<article class="message message--post"><div class="message-userContent"></div></article>`)
	messages := ExtractMessages(doc, "https://forum.example/whats-new")
	require.Len(t, messages, 1)
	require.Empty(t, messages[0].ThreadID)
	require.Empty(t, messages[0].AuthorName)
	require.Empty(t, messages[0].PostedLiteral)
	require.Empty(t, messages[0].RawText)
}

func TestExtractMessagesNilDocument(t *testing.T) {
	t.Parallel()

	require.Nil(t, ExtractMessages(nil, "https://forum.example/t/a.1/"))
	require.Nil(t, ListThreads(nil, nil))
}
