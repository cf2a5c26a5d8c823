// Package identity derives stable message identifiers.
package identity

import (
	"crypto/md5" //nolint:gosec // ids must match records written by earlier crawler versions
	"encoding/hex"
	"net/url"
	"strings"
)

const separator = "_"

// ThreadID returns everything after the last dot of the escaped URL path.
// Anything following the numeric id is kept, so "/t/some-title.12345/page-4"
// yields "12345/page-4". Ids already stored downstream were derived this way.
func ThreadID(threadURL string) (string, bool) {
	u, err := url.Parse(threadURL)
	if err != nil {
		return "", false
	}
	path := u.EscapedPath()
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", false
	}
	id := path[idx+1:]
	if id == "" {
		return "", false
	}
	return id, true
}

// Generate returns the hex digest of threadID and the raw timestamp literal.
// It reports false when either part is missing.
func Generate(threadURL, timestampLiteral string) (string, bool) {
	threadID, ok := ThreadID(threadURL)
	if !ok || timestampLiteral == "" {
		return "", false
	}
	sum := md5.Sum([]byte(threadID + separator + timestampLiteral)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:]), true
}
