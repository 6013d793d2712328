package sanitize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// idPattern is the shape a surviving id attribute must have so downstream
// CSS selectors stay well-formed.
var idPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._:-]*$`)

// idNamespacePrefix is the namespacing prefix some sanitizer front-ends
// prepend to ids. It is stripped before validation and valid ids are
// restored unprefixed so selectors targeting the original id still match.
const idNamespacePrefix = "user-content-"

// AllowURL is the decision function applied to href, src and each srcset
// candidate after tag/attribute allow-listing. Accepted: fragment-only,
// absolute-path and explicit relative references, plus absolute http(s)
// URLs. Protocol-relative references and every other scheme (javascript:,
// data:, ...) are rejected.
func AllowURL(raw string) bool {
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "#") {
		return true
	}
	if strings.HasPrefix(raw, "//") {
		return false
	}
	if strings.HasPrefix(raw, "/") ||
		strings.HasPrefix(raw, "./") ||
		strings.HasPrefix(raw, "../") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	}
	return false
}

// postProcess parses the sanitized fragment and enforces the URL policy,
// id validity and rel hardening on every element, then re-renders.
// Attributes failing a check are stripped; elements are never dropped here.
func postProcess(fragment string) (string, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, n := range nodes {
		fixNode(n)
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func fixNode(n *html.Node) {
	if n.Type == html.ElementNode {
		n.Attr = fixAttrs(n.Data, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		fixNode(c)
	}
}

func fixAttrs(tag string, attrs []html.Attribute) []html.Attribute {
	out := make([]html.Attribute, 0, len(attrs))
	targetBlank := false
	relIdx := -1

	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		switch key {
		case "href", "src":
			if !AllowURL(a.Val) {
				continue
			}
		case "srcset":
			if !allowSrcset(a.Val) {
				continue
			}
		case "id":
			v := strings.TrimPrefix(a.Val, idNamespacePrefix)
			if !idPattern.MatchString(v) {
				continue
			}
			a.Val = v
		case "target":
			if a.Val == "_blank" {
				targetBlank = true
			}
		case "rel":
			relIdx = len(out)
		}
		out = append(out, a)
	}

	// Reverse-tabnabbing guard: a target=_blank link must carry both
	// noopener and noreferrer, merged with whatever rel it already has.
	if tag == "a" && targetBlank {
		if relIdx >= 0 {
			out[relIdx].Val = unionRel(out[relIdx].Val)
		} else {
			out = append(out, html.Attribute{Key: "rel", Val: "noopener noreferrer"})
		}
	}
	return out
}

// allowSrcset checks every candidate URL in a srcset value. One bad
// candidate fails the whole attribute; partial rewrites would change
// rendering semantics.
func allowSrcset(val string) bool {
	candidates := strings.Split(val, ",")
	for _, c := range candidates {
		fields := strings.Fields(strings.TrimSpace(c))
		if len(fields) == 0 {
			return false
		}
		if !AllowURL(fields[0]) {
			return false
		}
	}
	return true
}

// unionRel merges noopener and noreferrer into an existing rel token list,
// preserving order and deduplicating.
func unionRel(existing string) string {
	tokens := strings.Fields(existing)
	seen := make(map[string]bool, len(tokens)+2)
	for _, t := range tokens {
		seen[strings.ToLower(t)] = true
	}
	for _, required := range []string{"noopener", "noreferrer"} {
		if !seen[required] {
			tokens = append(tokens, required)
		}
	}
	return strings.Join(tokens, " ")
}
