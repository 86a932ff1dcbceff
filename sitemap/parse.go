package sitemap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Kind is the document type, taken from the first element of the document.
type Kind int

const (
	KindUnknown Kind = iota
	KindIndex
	KindURLSet
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "SitemapIndex"
	case KindURLSet:
		return "UrlSet"
	default:
		return "Unknown"
	}
}

// Document is a parsed sitemap. Locs holds the trimmed text of every <loc>
// child of a <sitemap> or <url> entry, in document order. Extension elements
// such as <image:loc> are ignored.
type Document struct {
	Kind Kind
	Locs []string
}

// Parse reads a sitemap document. Non-UTF-8 documents are decoded according
// to their XML declaration.
//
// A syntax error after the root element returns the locations read so far
// along with the error. An unrecognized root element yields KindUnknown and
// no error.
func Parse(r io.Reader) (Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		doc   Document
		root  bool
		inLoc bool
		text  strings.Builder
		stack []xml.Name
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		if err != nil {
			return doc, fmt.Errorf("parse sitemap: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !root {
				root = true
				switch t.Name.Local {
				case "sitemapindex":
					doc.Kind = KindIndex
				case "urlset":
					doc.Kind = KindURLSet
				default:
					return doc, nil
				}
				stack = append(stack, t.Name)
				continue
			}
			if isEntryLoc(t.Name, stack) {
				inLoc = true
				text.Reset()
			}
			stack = append(stack, t.Name)
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if inLoc && t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(text.String()); loc != "" {
					doc.Locs = append(doc.Locs, loc)
				}
			}
		}
	}
}

// isEntryLoc reports whether name is a <loc> directly inside a <url> or
// <sitemap> entry of the same namespace.
func isEntryLoc(name xml.Name, stack []xml.Name) bool {
	if name.Local != "loc" || len(stack) == 0 {
		return false
	}
	parent := stack[len(stack)-1]
	return (parent.Local == "url" || parent.Local == "sitemap") && parent.Space == name.Space
}
