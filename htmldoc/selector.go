package htmldoc

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Attribute values that HTML compares ASCII case-insensitively. A selector
// like [type=checkbox] must match type="Checkbox" as a browser does.
var caseInsensitiveAttr = regexp.MustCompile(
	`\[\s*(type|method|enctype|formmethod|formenctype|dir|shape|scope|align|valign)\s*=\s*("[^"]*"|'[^']*'|[^\s\]]+)\s*\]`)

// compileQuery parses a CSS selector group. Equality tests on the
// attributes above are flagged case-insensitive before parsing.
func compileQuery(query string) (cascadia.SelectorGroup, error) {
	group, err := cascadia.ParseGroup(caseInsensitiveAttr.ReplaceAllString(query, "[$1=$2 i]"))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: selector %q: %w", query, err)
	}
	return group, nil
}

// queryAll returns the elements under root matching group, in document
// order and without duplicates.
func queryAll(root *html.Node, group cascadia.SelectorGroup) []*html.Node {
	return cascadia.QueryAll(root, group)
}
