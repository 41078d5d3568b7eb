package browsertest

import "strings"

// Matches reports whether the node satisfies the selector. Each
// comma-separated alternative is reduced to its last simple selector;
// descendant and child combinators are not evaluated.
func Matches(n *Node, selector string) bool {
	for _, alt := range strings.Split(selector, ",") {
		simple := lastSimple(strings.TrimSpace(alt))
		if simple == "" {
			continue
		}
		if matchSimple(n, simple) {
			return true
		}
	}
	return false
}

// lastSimple returns the final compound selector of a chain like
// "div[a='b'] > span .chip", taking care not to split inside brackets
// or parentheses.
func lastSimple(sel string) string {
	depth := 0
	last := 0
	for i, r := range sel {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ' ', '>', '+', '~':
			if depth == 0 {
				last = i + 1
			}
		}
	}
	return strings.TrimSpace(sel[last:])
}

func matchSimple(n *Node, simple string) bool {
	rest := simple
	// Leading tag name.
	if i := strings.IndexAny(rest, "#.[:"); i != 0 {
		var tag string
		if i < 0 {
			tag, rest = rest, ""
		} else {
			tag, rest = rest[:i], rest[i:]
		}
		if tag != "*" && !strings.EqualFold(tag, n.Tag) {
			return false
		}
	}
	for rest != "" {
		switch rest[0] {
		case '#':
			id, tail := readName(rest[1:])
			if n.ID != id {
				return false
			}
			rest = tail
		case '.':
			class, tail := readName(rest[1:])
			if !hasClass(n, class) {
				return false
			}
			rest = tail
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return false
			}
			if !matchAttr(n, rest[1:end]) {
				return false
			}
			rest = rest[end+1:]
		case ':':
			if strings.HasPrefix(rest, ":not(") {
				end := strings.IndexByte(rest, ')')
				if end < 0 {
					return false
				}
				if matchSimple(n, rest[len(":not("):end]) {
					return false
				}
				rest = rest[end+1:]
			} else {
				// Other pseudo-classes are treated as always true.
				_, tail := readName(rest[1:])
				rest = tail
			}
		default:
			return false
		}
	}
	return true
}

func readName(s string) (name, rest string) {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func hasClass(n *Node, class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// matchAttr evaluates the inside of an attribute selector: "name",
// "name='v'" or "name^='v'" (quotes optional).
func matchAttr(n *Node, expr string) bool {
	prefix := false
	var name, want string
	switch {
	case strings.Contains(expr, "^="):
		parts := strings.SplitN(expr, "^=", 2)
		name, want, prefix = parts[0], parts[1], true
	case strings.Contains(expr, "="):
		parts := strings.SplitN(expr, "=", 2)
		name, want = parts[0], parts[1]
	default:
		_, ok := n.Attrs[strings.TrimSpace(expr)]
		return ok
	}
	name = strings.TrimSpace(name)
	want = strings.Trim(strings.TrimSpace(want), `"'`)
	got, ok := n.Attrs[name]
	if !ok {
		return false
	}
	if prefix {
		return strings.HasPrefix(got, want)
	}
	return got == want
}
