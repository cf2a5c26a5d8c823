package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
	"github.com/JakeFAU/realtime-forum-crawler/internal/identity"
)

const (
	postSelector      = "article.message.message--post"
	authorSelector    = `h4.message-name span[itemprop="name"]`
	postTimeSelector  = "time.u-dt[datetime]"
	postBodySelector  = "div.message-userContent div.bbWrapper"
	fragmentSeparator = " "
)

// ExtractMessages parses a thread page into candidate messages. Text inside
// quoted replies is excluded. Output is ordered by posting instant, oldest
// first; posts whose timestamp cannot be parsed come first and ties keep
// document order.
func ExtractMessages(doc *goquery.Document, threadURL string) []forum.CandidateMessage {
	if doc == nil {
		return nil
	}
	threadID, _ := identity.ThreadID(threadURL)
	var messages []forum.CandidateMessage
	doc.Find(postSelector).Each(func(_ int, s *goquery.Selection) {
		literal, _ := s.Find(postTimeSelector).First().Attr("datetime")
		msg := forum.CandidateMessage{
			ThreadID:      threadID,
			AuthorName:    strings.TrimSpace(s.Find(authorSelector).First().Text()),
			PostedLiteral: literal,
			RawText:       bodyText(s.Find(postBodySelector)),
			ThreadURL:     threadURL,
		}
		if ts, ok := forum.ParseTimestamp(literal); ok {
			msg.PostedAt = ts
		}
		messages = append(messages, msg)
	})
	SortMessages(messages)
	return messages
}

// ExtractMessagesChecked behaves like ExtractMessages but reports
// forum.ErrMalformedDocument when the page has no post containers.
func ExtractMessagesChecked(doc *goquery.Document, threadURL string) ([]forum.CandidateMessage, error) {
	if doc == nil || doc.Find(postSelector).Length() == 0 {
		return nil, fmt.Errorf("thread %s has no %q containers: %w", threadURL, postSelector, forum.ErrMalformedDocument)
	}
	return ExtractMessages(doc, threadURL), nil
}

// SortMessages orders candidates by PostedAt, zero times first, stable.
func SortMessages(messages []forum.CandidateMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i].PostedAt, messages[j].PostedAt
		switch {
		case a.IsZero():
			return !b.IsZero()
		case b.IsZero():
			return false
		default:
			return a.Before(b)
		}
	})
}

// bodyText joins the trimmed, non-empty text nodes under the selection that
// do not sit inside a blockquote. Nested body wrappers are visited once.
func bodyText(bodies *goquery.Selection) string {
	seen := make(map[*html.Node]struct{})
	var fragments []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				fragments = append(fragments, text)
			}
			return
		case html.ElementNode:
			if n.DataAtom == atom.Blockquote {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range bodies.Nodes {
		if insideBlockquote(n) {
			continue
		}
		walk(n)
	}
	return strings.Join(fragments, fragmentSeparator)
}

func insideBlockquote(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Blockquote {
			return true
		}
	}
	return false
}
