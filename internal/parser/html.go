// Package parser derives plain text from HTML mail bodies.
package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRegex   = regexp.MustCompile(`[^\S\n]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
	// zero-width spaces, soft hyphens and other invisible fillers used by mailers
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}]+`)
)

const blockSelector = "p, div, br, h1, h2, h3, h4, h5, h6, li, tr, table, blockquote, pre, hr"

// HTMLParser converts HTML bodies to readable text
type HTMLParser struct {
	// KeepLinks appends the href after anchor text when they differ
	KeepLinks bool
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{KeepLinks: true}
}

// Parse converts HTML to plain text
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	doc.Find("img[alt]").Each(func(_ int, s *goquery.Selection) {
		if alt := strings.TrimSpace(s.AttrOr("alt", "")); alt != "" {
			s.ReplaceWithHtml(" [" + escape(alt) + "] ")
		}
	})

	if p.KeepLinks {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href := strings.TrimSpace(s.AttrOr("href", ""))
			label := strings.TrimSpace(s.Text())
			if !strings.HasPrefix(href, "http") || href == label {
				return
			}
			s.AppendHtml(" (" + escape(href) + ")")
		})
	}

	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return p.clean(doc.Text()), nil
}

func (p *HTMLParser) clean(text string) string {
	text = invisibleRegex.ReplaceAllString(text, "")
	text = spaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && line != "-" {
			kept = append(kept, line)
		}
	}

	text = strings.Join(kept, "\n")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
