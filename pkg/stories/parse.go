package stories

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-shiori/dom"
	nethtml "golang.org/x/net/html"

	"github.com/japaniel/rtkstories/pkg/apperr"
)

const (
	sectionKoohii    = "Koohii stories"
	sectionHeisig    = "Heisig story"
	sectionComment   = "Heisig comment"
	sectionPrimitive = "Primitive"
)

// reEntry matches the inner HTML of one Koohii paragraph:
// `12) [<a href="...">author</a>] 3-5-2009(25): story text`.
var reEntry = regexp.MustCompile(`(?s)^\s*[0-9]+\) \[<a[^>]*>([^<]*)</a>\] .*?\(([0-9]+)\): (.*?)\s*$`)

// Parse extracts a Bundle from a kanji page. A page without the Koohii
// section is an *apperr.FormatError; Koohii paragraphs that do not look like
// stories are skipped, and the Heisig sections are optional.
func Parse(key string, page []byte) (*Bundle, error) {
	doc, err := nethtml.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page for %q: %w", key, err)
	}

	headings := headingsByTitle(doc)
	koohiiHeading, ok := headings[sectionKoohii]
	if !ok {
		return nil, &apperr.FormatError{Key: key, Section: sectionKoohii}
	}

	b := &Bundle{
		Koohii:    parseKoohii(koohiiHeading),
		Heisig:    paragraphAfter(headings[sectionHeisig]),
		Comment:   paragraphAfter(headings[sectionComment]),
		Primitive: paragraphAfter(headings[sectionPrimitive]),
	}
	return b, nil
}

// ParseEntry parses one Koohii paragraph body.
func ParseEntry(inner string) (KoohiiStory, bool) {
	m := reEntry.FindStringSubmatch(inner)
	if m == nil {
		return KoohiiStory{}, false
	}
	score, err := strconv.Atoi(m[2])
	if err != nil {
		return KoohiiStory{}, false
	}
	return KoohiiStory{
		Author: html.UnescapeString(strings.TrimSpace(m[1])),
		Score:  score,
		Story:  m[3],
	}, true
}

// headingsByTitle indexes <h2> elements by their text without the trailing
// colon. The first heading with a given title wins.
func headingsByTitle(doc *nethtml.Node) map[string]*nethtml.Node {
	out := make(map[string]*nethtml.Node)
	for _, h := range dom.GetElementsByTagName(doc, "h2") {
		title := strings.TrimSpace(dom.TextContent(h))
		if !strings.HasSuffix(title, ":") {
			continue
		}
		title = strings.TrimSpace(strings.TrimSuffix(title, ":"))
		if _, seen := out[title]; !seen {
			out[title] = h
		}
	}
	return out
}

// parseKoohii collects the paragraphs following heading in document order up
// to the next <hr> or <h2>.
func parseKoohii(heading *nethtml.Node) []KoohiiStory {
	stories := make([]KoohiiStory, 0)
	for n := nextInDocument(heading, true); n != nil; n = nextInDocument(n, false) {
		if n.Type != nethtml.ElementNode {
			continue
		}
		tag := dom.TagName(n)
		if tag == "hr" || tag == "h2" {
			break
		}
		if tag != "p" {
			continue
		}
		if story, ok := ParseEntry(dom.InnerHTML(n)); ok {
			stories = append(stories, story)
		}
	}
	return stories
}

// paragraphAfter returns the inner HTML of the first <p> following heading.
// Only text and comments may come in between.
func paragraphAfter(heading *nethtml.Node) *string {
	if heading == nil {
		return nil
	}
	for n := heading.NextSibling; n != nil; n = n.NextSibling {
		switch n.Type {
		case nethtml.TextNode, nethtml.CommentNode:
		case nethtml.ElementNode:
			if dom.TagName(n) != "p" {
				return nil
			}
			inner := dom.InnerHTML(n)
			return &inner
		default:
			return nil
		}
	}
	return nil
}

// nextInDocument walks the tree in document order. With skipChildren the
// subtree of n is not entered.
func nextInDocument(n *nethtml.Node, skipChildren bool) *nethtml.Node {
	if !skipChildren && n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}
