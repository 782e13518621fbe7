package fetch

// #region imports
import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// #endregion

// #region normalize
var (
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Normalize dispatches a fetched payload by content type and truncates
// the normalized text to maxChars.
func Normalize(body, contentType string, maxChars int) string {
	ct := strings.ToLower(contentType)
	var out string

	switch {
	case strings.Contains(ct, "html"):
		out = stripHTML(body)
	case strings.Contains(ct, "json"):
		out = compactJSON(body)
	default:
		out = strings.TrimSpace(body)
	}

	if maxChars > 0 && len(out) > maxChars {
		// Back off to a rune boundary so truncation never caches
		// invalid UTF-8.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// stripHTML removes script/style blocks and tags, collapsing whitespace.
func stripHTML(body string) string {
	s := scriptRe.ReplaceAllString(body, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// compactJSON minifies valid JSON and leaves invalid payloads untouched.
func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return strings.TrimSpace(body)
	}
	return buf.String()
}

// #endregion normalize

// #region repair-parse
var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseReply unmarshals a structured reply from a networked validator's
// upstream into v. One repair attempt is permitted: if the raw reply is
// wrapped in markup (code fences, surrounding prose), the innermost JSON
// object is extracted and retried. Irreparable replies return ParseError
// so the caller can skip its semantic checks with a WARNING.
func ParseReply(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	repaired := repair(trimmed)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return &ParseError{Detail: "reply is not valid JSON after repair", Err: err}
	}
	return nil
}

// repair strips wrapping markup from a reply: code fences first, then
// anything outside the outermost braces.
func repair(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// #endregion repair-parse
