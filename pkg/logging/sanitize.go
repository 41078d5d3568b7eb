package logging

import (
	"strings"
)

// Basic helpers usable across packages for sanitizing log values.

// MaskEmail masks the local part and domain labels of an address so logs
// stay greppable without leaking full addresses.
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}
	user := s[:at]
	domain := s[at+1:]
	mask := func(part string) string {
		if len(part) <= 1 {
			return "*"
		}
		return part[:1] + strings.Repeat("*", max(0, len(part)-2)) + part[len(part)-1:]
	}
	dParts := strings.Split(domain, ".")
	for i, p := range dParts {
		dParts[i] = mask(p)
	}
	return mask(user) + "@" + strings.Join(dParts, ".")
}

// BoundAndClean trims control characters and bounds the length of
// arbitrary strings (DOM text, attribute values) for safe logging.
func BoundAndClean(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 || r == 127 {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		// Don't cut in the middle of a UTF-8 sequence
		cut := maxLen
		for cut > 0 && cut < len(out) {
			if (out[cut] & 0x80) == 0 {
				break
			}
			if (out[cut] & 0xC0) == 0xC0 {
				break
			}
			cut--
		}
		if cut <= 0 {
			cut = maxLen
		}
		return out[:cut]
	}
	return out
}
