package follow

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// helpHTML renders the embedded endpoint notes to sanitized HTML for the
// status page.
func helpHTML() template.HTML {
	unsafeHTML := blackfriday.Run(
		[]byte(helpMarkdown),
		blackfriday.WithExtensions(
			blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs,
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	// Sanitized above; safe to hand to the template engine as-is.
	return template.HTML(policy.SanitizeBytes(unsafeHTML))
}
