package client

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// finder looks up candidate nodes below root. An empty selection means no match.
type finder func(root *goquery.Selection) *goquery.Selection

// firstMatch returns the first node found by the first finder that matches anything, or nil.
func firstMatch(root *goquery.Selection, finders ...finder) *goquery.Selection {
	for _, find := range finders {
		if sel := find(root); sel != nil && sel.Length() > 0 {
			return sel.First()
		}
	}
	return nil
}

func bySelector(selector string) finder {
	return func(root *goquery.Selection) *goquery.Selection {
		return root.Find(selector)
	}
}

// byAttrPattern matches elements of the given tag whose attr value contains a match of pattern.
func byAttrPattern(tag, attr string, pattern *regexp.Regexp) finder {
	return func(root *goquery.Selection) *goquery.Selection {
		return root.Find(tag + "[" + attr + "]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			value, _ := s.Attr(attr)
			return pattern.MatchString(value)
		})
	}
}

// attrValue returns the first non-empty attribute among names.
func attrValue(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// imageSource picks the image URL of an img element from its eager or lazy-loading attributes, falling back
// to the first srcset candidate.
func imageSource(img *goquery.Selection) string {
	if src := attrValue(img, "src", "data-src", "data-original", "data-lazy"); src != "" {
		return src
	}

	srcset, ok := img.Attr("srcset")
	if !ok || srcset == "" {
		return ""
	}
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// texts returns the non-empty stripped texts of every element matched by selector below root, in document order.
func texts(root *goquery.Selection, selector string) []string {
	var out []string
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strippedText(s, " "); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// strippedText joins the trimmed, non-empty text nodes below s with sep.
func strippedText(s *goquery.Selection, sep string) string {
	var parts []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}
