package instrument

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document instruments every inline <script> in an HTML5 document,
// minting a fresh per-script SourceID by chaining docID with each
// script's position in document order. Scripts with a src attribute and
// non-HTML documents are passed through untouched, per §4.1.
func Document(docID SourceID, htmlText string) (string, error) {
	root, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return "", err
	}

	index := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script && !hasSrc(n) && isJavaScriptType(n) && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			scriptID := docID.Add(index)
			index++
			if rewritten, err := Source(scriptID, n.FirstChild.Data, KindAmbiguous); err == nil {
				n.FirstChild.Data = rewritten
			}
			// Parse failure: leave the inline script untouched rather
			// than fail the whole document.
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hasSrc(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "src" {
			return true
		}
	}
	return false
}

func isJavaScriptType(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "type" {
			continue
		}
		t := strings.ToLower(strings.TrimSpace(a.Val))
		return t == "" || t == "text/javascript" || t == "module" || t == "application/javascript"
	}
	return true // no type attribute: defaults to JS
}
