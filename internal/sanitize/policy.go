// Package sanitize produces SafeHTML from untrusted markup: an allow-list
// bluemonday policy followed by a post-processing pass that enforces URL,
// id and link-target safety the tag/attribute allow-list alone cannot
// express. The SafeHTML newtype is the only way HTML reaches the
// application engine, so unsanitized input cannot be passed by accident.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// SafeHTML is markup that has passed the strict policy and the URL/id/rel
// post-processing. Constructed only inside this package.
type SafeHTML string

// String returns the sanitized markup.
func (s SafeHTML) String() string { return string(s) }

// allowedTags is the structural/text/table/semantic allow-list. Notably
// absent: form, input, iframe, svg, style, meta, link, script, embed,
// object.
var allowedTags = []string{
	"a", "abbr", "article", "aside", "b", "blockquote", "br", "caption",
	"code", "dd", "del", "details", "div", "dl", "dt", "em", "figcaption",
	"figure", "footer", "h1", "h2", "h3", "h4", "h5", "h6", "header", "hr",
	"i", "img", "ins", "kbd", "li", "main", "mark", "nav", "ol", "p", "pre",
	"q", "s", "samp", "section", "small", "span", "strong", "sub", "summary",
	"sup", "table", "tbody", "td", "tfoot", "th", "thead", "time", "tr",
	"u", "ul",
}

// ariaAttrs is the curated aria-* set permitted on any element. Additive on
// top of the data-* allowance, not a replacement for it.
var ariaAttrs = []string{
	"aria-label", "aria-labelledby", "aria-describedby", "aria-hidden",
	"aria-live", "aria-expanded", "aria-controls", "aria-current",
	"aria-selected", "aria-disabled", "aria-busy", "aria-checked",
	"aria-valuemin", "aria-valuemax", "aria-valuenow",
}

// newStrictPolicy builds the bluemonday policy backing Strict. Attribute
// URL safety is deliberately loose here (relative URLs allowed): the
// post-processing pass in post.go applies the real per-attribute URL
// decision and strips what fails, rather than dropping whole elements.
func newStrictPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(allowedTags...)

	// Elements survive losing every attribute. An anchor whose href fails
	// the URL check keeps its text and tag; only the attribute is stripped.
	p.AllowNoAttrs().Globally()

	p.AllowAttrs("class", "id", "title", "lang", "dir", "role").Globally()
	p.AllowAttrs(ariaAttrs...).Globally()
	p.AllowDataAttributes()

	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "srcset", "alt", "width", "height", "loading").OnElements("img")
	p.AllowAttrs("colspan", "rowspan", "headers", "scope").OnElements("td", "th")
	p.AllowAttrs("span").OnElements("col", "colgroup")
	p.AllowAttrs("datetime").OnElements("time", "del", "ins")
	p.AllowAttrs("open").OnElements("details")
	p.AllowAttrs("start", "reversed", "type").OnElements("ol")
	p.AllowAttrs("value").OnElements("li")
	p.AllowAttrs("cite").OnElements("blockquote", "q", "del", "ins")

	// style and on* handlers are forbidden by omission: bluemonday only
	// emits what is allow-listed. URL schemes are constrained here and
	// again, more precisely, in the post-pass.
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)

	return p
}
