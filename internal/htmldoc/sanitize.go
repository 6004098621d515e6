// Package htmldoc handles the HTML side of book ingestion: sanitizing
// chapter markup, pulling plain text out of content documents, and
// splitting standalone HTML uploads into chapters.
package htmldoc

import (
	"regexp"
)

// The sanitizer removes active content only. Structural and presentational
// tags pass through untouched so the stored chapter renders the way the
// publisher authored it.
var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	scriptOpenRe  = regexp.MustCompile(`(?i)<script\b[^>]*/?>`)
	eventAttrRe   = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	uriSchemeRe   = regexp.MustCompile(`(?i)\b(?:javascript|data)\s*:`)
)

// Sanitize strips <script> blocks, inline event-handler attributes and
// javascript:/data: URI schemes from html. The pass is idempotent:
// sanitizing already-sanitized content returns it unchanged.
func Sanitize(html string) string {
	out := scriptBlockRe.ReplaceAllString(html, "")
	out = scriptOpenRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	out = uriSchemeRe.ReplaceAllString(out, "")
	return out
}
