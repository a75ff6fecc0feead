// Package sanitize strips script-injection vectors from parameter
// values before they reach the document. The filtering is best effort:
// it hardens attribute and text writes against the common payload
// shapes, it is not a full HTML sanitizer.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptTagRe   = regexp.MustCompile(`(?i)</?script\b[^>]*>`)
	eventAttrRe   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>"']+)`)
	schemeRe      = regexp.MustCompile(`(?i)\b(?:j\s*a\s*v\s*a\s*s\s*c\s*r\s*i\s*p\s*t|v\s*b\s*s\s*c\s*r\s*i\s*p\s*t)\s*:`)
	dataHTMLRe    = regexp.MustCompile(`(?i)\bdata\s*:\s*text/html[^,]*,?`)
	cssExprRe     = regexp.MustCompile(`(?i)\bexpression\s*\(`)
)

// allowedSchemes is the protocol allow-list for absolute URLs.
var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
	"ftp":    true,
	"ftps":   true,
}

// Clean removes script elements, inline event-handler attributes,
// executable URI schemes and CSS expression() calls from s. Safe input
// passes through unchanged.
func Clean(s string) string {
	if s == "" {
		return s
	}
	out := scriptBlockRe.ReplaceAllString(s, "")
	out = scriptTagRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	out = schemeRe.ReplaceAllString(out, "")
	out = dataHTMLRe.ReplaceAllString(out, "")
	out = cssExprRe.ReplaceAllString(out, "(")
	return out
}

// CleanURL validates raw against the protocol allow-list. Relative
// URLs and fragment references pass through; absolute URLs with a
// disallowed or unparseable scheme return the empty string.
func CleanURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if u.Scheme == "" {
		return trimmed
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return ""
	}
	return trimmed
}

// SafeAttrName reports whether name may be written as an attribute.
// Inline event handlers are never writable.
func SafeAttrName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return false
	}
	if strings.HasPrefix(lower, "on") && len(lower) > 2 {
		return false
	}
	return true
}

// URLAttr reports whether writes to the named attribute carry a URL
// and must pass CleanURL.
func URLAttr(name string) bool {
	switch strings.ToLower(name) {
	case "href", "src", "action", "formaction", "poster", "data", "cite":
		return true
	default:
		return false
	}
}
