package collect

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText strips markup (search APIs wrap matches in <b>) and decodes
// HTML entities, collapsing whitespace.
func CleanText(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.Join(strings.Fields(text), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
