package parser

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const cellSeparator = " | "

var inlineSpace = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// skipped entirely, including their text
var skipAtoms = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// end a paragraph
var paragraphAtoms = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dl:         true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Main:       true,
	atom.Aside:      true,
	atom.Nav:        true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Form:       true,
	atom.Hr:         true,
}

// end a line
var lineAtoms = map[atom.Atom]bool{
	atom.Br:      true,
	atom.Tr:      true,
	atom.Li:      true,
	atom.Dt:      true,
	atom.Dd:      true,
	atom.Caption: true,
}

// WordprocessingML elements, matched by name since they have no atom
var lineNames = map[string]bool{
	"w:p":  true,
	"w:br": true,
}

// ExtractHTML returns the document title and its visible text. Block elements
// and table rows end lines, table cells are joined with " | ".
func ExtractHTML(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		title string
		b     strings.Builder
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// line structure comes from elements, not from source formatting
			b.WriteString(inlineSpace.Replace(n.Data))
			return
		case html.ElementNode:
			if n.DataAtom == atom.Head && title == "" {
				title = findTitle(n)
			}
			if skipAtoms[n.DataAtom] {
				return
			}
			if (n.DataAtom == atom.Td || n.DataAtom == atom.Th) && prevElement(n) != nil {
				b.WriteString(cellSeparator)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch {
			case paragraphAtoms[n.DataAtom]:
				b.WriteString("\n\n")
			case lineAtoms[n.DataAtom], lineNames[n.Data]:
				b.WriteString("\n")
			}
		}
	}
	walk(doc)

	return title, normalizeWhitespace(b.String()), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.Join(strings.Fields(textOf(n)), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func prevElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// normalizeWhitespace collapses runs of spaces inside each line, drops blank
// lines except for a single one between paragraphs and trims the result.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")

	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.TrimSuffix(strings.TrimPrefix(line, "| "), " |")
		if line == "" || line == "|" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
