// Package report renders the markdown produced by the agents to sanitized
// HTML.
package report

import (
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// ToHTML converts markdown to an HTML fragment safe for embedding.
func ToHTML(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	opts := html.RendererOptions{Flags: htmlFlags}
	renderer := html.NewRenderer(opts)
	out := markdown.Render(doc, renderer)

	return string(bluemonday.UGCPolicy().SanitizeBytes(out))
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Page wraps the rendered markdown in a standalone HTML document.
func Page(title, md string) (string, error) {
	var sb strings.Builder
	err := pageTemplate.Execute(&sb, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(ToHTML(md)), // #nosec G203 sanitized by ToHTML
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
