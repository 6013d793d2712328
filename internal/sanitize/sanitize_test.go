package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uicp/internal/protocol"
)

func strict(t *testing.T, html string) string {
	t.Helper()
	safe, err := Strict(html)
	require.NoError(t, err)
	return safe.String()
}

func TestCleanHTMLPreserved(t *testing.T) {
	tests := []string{
		`<p>Hi</p>`,
		`<b>ok</b>`,
		`<div class="card"><h2>Title</h2><ul><li>one</li><li>two</li></ul></div>`,
		`<table><thead><tr><th scope="col">A</th></tr></thead><tbody><tr><td>1</td></tr></tbody></table>`,
	}
	for _, html := range tests {
		assert.Equal(t, html, strict(t, html))
	}
}

func TestScriptAndStyleRemoved(t *testing.T) {
	assert.Equal(t, "", strict(t, `<script>alert(1)</script>`))
	assert.Equal(t, "", strict(t, `<style>body{display:none}</style>`))
	assert.Equal(t, `<p>before</p><p>after</p>`,
		strict(t, `<p>before</p><script>alert(1)</script><p>after</p>`))
}

func TestEventHandlersStripped(t *testing.T) {
	out := strict(t, `<img src="/x.png" onerror="alert(1)" alt="x">`)
	assert.NotContains(t, out, "onerror")
	assert.Contains(t, out, `src="/x.png"`)
}

func TestStyleAttributeStripped(t *testing.T) {
	out := strict(t, `<p style="position:fixed">x</p>`)
	assert.Equal(t, `<p>x</p>`, out)
}

func TestForbiddenElementsDropped(t *testing.T) {
	for _, html := range []string{
		`<iframe src="https://evil.com"></iframe>`,
		`<embed src="x">`,
		`<object data="x"></object>`,
		`<form action="/steal"><input name="pw"></form>`,
		`<meta http-equiv="refresh" content="0">`,
		`<link rel="stylesheet" href="x.css">`,
	} {
		out := strict(t, html)
		assert.NotContains(t, out, "<iframe")
		assert.NotContains(t, out, "<embed")
		assert.NotContains(t, out, "<object")
		assert.NotContains(t, out, "<form")
		assert.NotContains(t, out, "<input")
		assert.NotContains(t, out, "<meta")
		assert.NotContains(t, out, "<link")
	}
}

func TestURLPolicy(t *testing.T) {
	// javascript: stripped (by the allow-list policy already, and by the
	// post-pass as a second layer).
	out := strict(t, `<a href="javascript:alert(1)">x</a>`)
	assert.Equal(t, `<a>x</a>`, out)

	// https preserved.
	out = strict(t, `<a href="https://example.com/page">x</a>`)
	assert.Contains(t, out, `href="https://example.com/page"`)

	// Protocol-relative stripped.
	out = strict(t, `<a href="//evil.com">x</a>`)
	assert.NotContains(t, out, "evil.com")

	// Fragment, absolute-path and explicit relative references preserved.
	for _, href := range []string{"#section", "/docs", "./next", "../up"} {
		out = strict(t, `<a href="`+href+`">x</a>`)
		assert.Contains(t, out, `href="`+href+`"`, "href %q should survive", href)
	}

	// Bare relative references are not on the accept list.
	out = strict(t, `<a href="page.html">x</a>`)
	assert.NotContains(t, out, "page.html")

	// data: stripped.
	out = strict(t, `<img src="data:image/png;base64,AAAA" alt="x">`)
	assert.NotContains(t, out, "data:")
}

func TestAllowURL(t *testing.T) {
	allowed := []string{"#f", "/a/b", "./x", "../x", "https://example.com/a", "http://example.com"}
	for _, u := range allowed {
		assert.True(t, AllowURL(u), "AllowURL(%q)", u)
	}
	rejected := []string{"", "//evil.com", "javascript:alert(1)", "data:text/html,x", "ftp://x", "page.html", "https://"}
	for _, u := range rejected {
		assert.False(t, AllowURL(u), "AllowURL(%q)", u)
	}
}

func TestSrcsetPolicy(t *testing.T) {
	out := strict(t, `<img srcset="/a.png 1x, /b.png 2x" alt="x">`)
	assert.Contains(t, out, "srcset")

	out = strict(t, `<img srcset="//evil.com/x.png 1x" alt="x">`)
	assert.NotContains(t, out, "evil.com")
}

func TestIDValidation(t *testing.T) {
	// Namespacing prefix stripped, valid id restored unprefixed.
	out := strict(t, `<div id="user-content-section-1">x</div>`)
	assert.Contains(t, out, `id="section-1"`)

	// Valid ids untouched.
	out = strict(t, `<div id="ok_1.a:b-c">x</div>`)
	assert.Contains(t, out, `id="ok_1.a:b-c"`)

	// Invalid ids removed entirely.
	out = strict(t, `<div id="9starts-with-digit">x</div>`)
	assert.NotContains(t, out, "id=")
}

func TestTargetBlankRelHardened(t *testing.T) {
	out := strict(t, `<a href="https://example.com" target="_blank">x</a>`)
	assert.Contains(t, out, "noopener")
	assert.Contains(t, out, "noreferrer")

	// Existing rel tokens are merged, not replaced.
	out = strict(t, `<a href="https://example.com" target="_blank" rel="external noopener">x</a>`)
	assert.Contains(t, out, `rel="external noopener noreferrer"`)
}

func TestDataAndAriaAttributes(t *testing.T) {
	out := strict(t, `<div data-view="grid" aria-label="items" role="list">x</div>`)
	assert.Contains(t, out, `data-view="grid"`)
	assert.Contains(t, out, `aria-label="items"`)
	assert.Contains(t, out, `role="list"`)
}

func TestInputTooLarge(t *testing.T) {
	_, err := Strict(strings.Repeat("a", protocol.MaxHTMLBytes+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrSanitizationInputTooLarge))

	// Exactly at the cap is accepted.
	_, err = Strict(strings.Repeat("a", protocol.MaxHTMLBytes))
	require.NoError(t, err)
}

func TestEmptyInput(t *testing.T) {
	assert.Equal(t, "", strict(t, ""))
}
