package util

import (
	"regexp"
	"strings"
)

// ParseSender extracts the sender address and display name from a From header.
//   - "Name <User@Example.COM>" -> "user@example.com", "Name"
//   - `"Name" <user@example.com>` -> "user@example.com", "Name"
//   - "user@example.com"          -> "user@example.com", ""
//
// ok is false when no address can be derived; such messages are skipped.
func ParseSender(from string) (email, name string, ok bool) {
	if lt := strings.Index(from, "<"); lt >= 0 {
		if gt := strings.Index(from[lt+1:], ">"); gt >= 0 {
			email = strings.ToLower(strings.TrimSpace(from[lt+1 : lt+1+gt]))
			if email == "" {
				return "", "", false
			}
			return email, displayName(from[:lt]), true
		}
	}
	if strings.Contains(from, "@") {
		return strings.ToLower(strings.TrimSpace(from)), "", true
	}
	return "", "", false
}

// displayName trims the text before "<" and strips one matching pair of
// surrounding quotes. Unbalanced quotes are kept.
func displayName(raw string) string {
	name := strings.TrimSpace(raw)
	if n := len(name); n >= 2 && isQuote(name[0]) && name[n-1] == name[0] {
		name = strings.TrimSpace(name[1 : n-1])
	}
	return name
}

func isQuote(b byte) bool {
	return b == '"' || b == '\''
}

var bracketedRe = regexp.MustCompile(`<([^>]*)>`)

// UnsubscribeLink picks the link to follow from a List-Unsubscribe header.
// The first bracketed http(s) URI wins regardless of position; otherwise the
// first bracketed mailto: URI is returned. Returns "" when neither is present.
func UnsubscribeLink(header string) string {
	var mailto string
	for _, m := range bracketedRe.FindAllStringSubmatch(header, -1) {
		uri := strings.TrimSpace(m[1])
		lower := strings.ToLower(uri)
		switch {
		case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
			return uri
		case mailto == "" && strings.HasPrefix(lower, "mailto:"):
			mailto = "mailto:" + uri[len("mailto:"):]
		}
	}
	return mailto
}
