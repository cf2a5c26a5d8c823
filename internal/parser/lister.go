package parser

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/identity"
)

const (
	threadContainerSelector = "div.structItem.structItem--thread"
	latestLinkSelector      = `div.structItem-cell--latest a[href*="/latest"]`
	threadTitleSelector     = "div.structItem-title a"
	threadDateSelector      = "div.structItem-cell--main time[datetime]"
)

// ListThreads parses a listing page into thread summaries ordered by latest
// activity, oldest first. Threads without a timestamp sort before all others.
// Containers without a resolvable latest-post link are skipped.
func ListThreads(doc *goquery.Document, base *url.URL) []forum.ThreadSummary {
	if doc == nil {
		return nil
	}
	var threads []forum.ThreadSummary
	doc.Find(threadContainerSelector).Each(func(_ int, s *goquery.Selection) {
		summary, ok := parseThreadContainer(s, base)
		if ok {
			threads = append(threads, summary)
		}
	})
	SortThreads(threads)
	return threads
}

// ListThreadsChecked behaves like ListThreads but reports
// forum.ErrMalformedDocument when the page has no thread containers at all.
func ListThreadsChecked(doc *goquery.Document, base *url.URL) ([]forum.ThreadSummary, error) {
	if doc == nil || doc.Find(threadContainerSelector).Length() == 0 {
		return nil, fmt.Errorf("listing has no %q containers: %w", threadContainerSelector, forum.ErrMalformedDocument)
	}
	return ListThreads(doc, base), nil
}

// SortThreads orders summaries ascending by LatestActivity with nil first.
// The sort is stable so equal timestamps keep listing order.
func SortThreads(threads []forum.ThreadSummary) {
	sort.SliceStable(threads, func(i, j int) bool {
		a, b := threads[i].LatestActivity, threads[j].LatestActivity
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}

func parseThreadContainer(s *goquery.Selection, base *url.URL) (forum.ThreadSummary, bool) {
	href, ok := s.Find(latestLinkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return forum.ThreadSummary{}, false
	}
	threadURL, ok := resolve(base, href)
	if !ok {
		return forum.ThreadSummary{}, false
	}

	dateLiteral, _ := s.Find(threadDateSelector).First().Attr("datetime")
	summary := forum.ThreadSummary{
		Title:       strings.TrimSpace(s.Find(threadTitleSelector).First().Text()),
		URL:         threadURL,
		DateLiteral: dateLiteral,
	}
	summary.ThreadID, _ = identity.ThreadID(threadURL)
	if ts, ok := forum.ParseTimestamp(dateLiteral); ok {
		summary.LatestActivity = &ts
	}
	return summary, true
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}
