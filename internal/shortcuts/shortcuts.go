// Package shortcuts expands user-defined launch templates into concrete
// command strings. Expanded commands are ordinary validator/executor input;
// nothing here runs anything itself.
package shortcuts

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Table holds the opener binary, the web search template, and the named
// shortcut entries from config. Read-only after construction.
type Table struct {
	opener    string
	searchURL string
	entries   map[string]string
}

// NewTable builds a Table. searchURL must contain a {query} placeholder;
// entries map shortcut names to command templates with {param} placeholders.
func NewTable(opener, searchURL string, entries map[string]string) *Table {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Table{opener: opener, searchURL: searchURL, entries: copied}
}

// OpenURL canonicalizes an open_url intent into a command. Web and file
// URLs go through the opener; anything else is treated as an application
// name and launched as-is.
func (t *Table) OpenURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "file://") {
		return t.opener + " " + raw
	}
	return raw
}

// Search builds the opener command for a web search. The query is
// URL-escaped so the result stays a single shell token.
func (t *Table) Search(query string) string {
	u := strings.ReplaceAll(t.searchURL, "{query}", url.QueryEscape(strings.TrimSpace(query)))
	return t.opener + " " + u
}

var placeholderRe = regexp.MustCompile(`\{[a-zA-Z_]+\}`)

// Expand resolves a named shortcut into its command, substituting
// URL-escaped params for {param} placeholders.
//
// Expectations:
//   - Substitutes each param into its placeholder, URL-escaped
//   - Returns an error naming the key when no entry matches
//   - Returns an error naming the placeholder when a param is missing
func (t *Table) Expand(key string, params map[string]string) (string, error) {
	tmpl, ok := t.entries[key]
	if !ok {
		return "", fmt.Errorf("no shortcut found for key: %q", key)
	}
	cmd := tmpl
	for k, v := range params {
		cmd = strings.ReplaceAll(cmd, "{"+k+"}", url.QueryEscape(v))
	}
	if m := placeholderRe.FindString(cmd); m != "" {
		return "", fmt.Errorf("shortcut %q missing parameter %s", key, m)
	}
	return cmd, nil
}

// Keys returns the shortcut names in sorted order, for prompts and
// diagnostics.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
