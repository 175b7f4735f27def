// Package extract locates produced media URLs inside backend responses whose
// shape is not fixed. It is a best-effort search, not a schema.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// priorityKeys are probed, in order, before any other member of an object.
var priorityKeys = []string{"url", "b64_json", "image", "img", "link", "content", "data"}

var (
	markdownImage = regexp.MustCompile(`(?i)!\[.*?\]\((https?://[^\s"'<>)]+)\)`)
	embeddedURL   = regexp.MustCompile(`(?i)(https?://[^\s"'<>]+)`)
)

// Extract returns the first plausible media URL in n, searching depth-first.
func Extract(n Node) (string, bool) {
	switch n.kind {
	case String:
		return fromString(n.text)
	case Array:
		for _, item := range n.items {
			if found, ok := Extract(item); ok {
				return found, true
			}
		}
	case Object:
		for _, key := range priorityKeys {
			v, ok := n.Get(key)
			if !ok || !v.Truthy() {
				continue
			}
			if found, ok := Extract(v); ok {
				return found, true
			}
		}
		for _, m := range n.members {
			switch m.Value.kind {
			case String, Array, Object:
				if found, ok := Extract(m.Value); ok {
					return found, true
				}
			}
		}
	}
	return "", false
}

func fromString(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if m := markdownImage.FindStringSubmatch(trimmed); m != nil {
		return m[1], true
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		if strings.IndexFunc(trimmed, unicode.IsSpace) < 0 {
			return trimmed, true
		}
	}
	if strings.HasPrefix(trimmed, "data:image") {
		return trimmed, true
	}
	if m := embeddedURL.FindStringSubmatch(trimmed); m != nil {
		return m[1], true
	}
	return "", false
}

// FromChatCompletion searches the whole response first and then, if nothing
// turned up, the first choice's message content.
func FromChatCompletion(resp Node) (string, bool) {
	if found, ok := Extract(resp); ok {
		return found, true
	}
	return Extract(resp.Lookup("choices", "0", "message", "content"))
}
