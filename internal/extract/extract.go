// Package extract turns raw HTML pages into clean plain text.
//
// Extraction runs in two passes: go-readability isolates the main article
// content (dropping navigation, ads and other boilerplate), then goquery
// flattens the readable HTML into text with paragraph boundaries preserved
// as line breaks. An unreadable page yields an empty string, not an error;
// callers must check for emptiness before chunking.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// blockSelector matches the elements whose text forms one output line each.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td, figcaption"

// Text extracts readable plain text from an HTML document.
// srcURL is used for resolving relative references and diagnostics only.
//
// Returns "" when no readable content is detected. Parse failures also
// degrade to "" rather than an error: a page we cannot read is a page with
// nothing to ingest.
func Text(html string, srcURL string) string {
	pageURL, err := url.Parse(srcURL)
	if err != nil {
		pageURL = nil
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return ""
	}

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a <p> inside a <blockquote>) would duplicate text;
		// only leaf blocks contribute a line.
		if s.ChildrenFiltered(blockSelector).Length() > 0 {
			return
		}
		if line := collapseSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})

	// Some readable pages carry bare text without block markup.
	if len(lines) == 0 {
		for _, raw := range strings.Split(doc.Text(), "\n") {
			if line := collapseSpace(raw); line != "" {
				lines = append(lines, line)
			}
		}
	}

	return strings.Join(lines, "\n")
}

// collapseSpace trims a line and collapses internal whitespace runs to a
// single space, so markup indentation does not leak into chunks.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
