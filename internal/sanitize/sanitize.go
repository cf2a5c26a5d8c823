// Package sanitize strips page-widget boilerplate from extracted post text.
package sanitize

import (
	"regexp"
	"strings"
)

// lightboxConfig matches the JSON phrase table the image viewer embeds inside
// post bodies. (?s) lets .*? cross the embedded newlines; \n and \t are literal.
var lightboxConfig = regexp.MustCompile(`(?s)\{\n\t+"lightbox_.*?"Toggle sidebar"\n\t+\}`)

// Clean removes every lightbox configuration block and trims the result.
// Text containing no block is returned untouched.
func Clean(raw string) string {
	if !lightboxConfig.MatchString(raw) {
		return raw
	}
	out := raw
	for {
		next := lightboxConfig.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
