package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Node is one element of a parsed document. Names keep their namespace
// prefix as written ("content:encoded", "media:thumbnail"), so lookups
// work the same regardless of which URI the prefix is bound to.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node

	text strings.Builder
}

// Child returns the first child element called name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child element called name. A single element
// and a repeated one are handled identically.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the named attribute, or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// Structured reports whether the element holds child elements rather
// than plain text.
func (n *Node) Structured() bool {
	return n != nil && len(n.Children) > 0
}

// framing elements must be closed before the document ends; anything else
// left open (a stray <br>) is closed implicitly.
var framing = map[string]bool{
	"rss":     true,
	"channel": true,
	"feed":    true,
	"item":    true,
	"entry":   true,
}

// parseTree reads an XML document into a Node tree rooted at a synthetic
// node whose children are the document's top-level elements. Mismatched
// inner tags are tolerated; a syntax error or a document that ends inside
// a channel or item is not.
func parseTree(data []byte) (*Node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	root := &Node{}
	stack := []*Node{root}

	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualifiedName(t.Name)}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[qualifiedName(a.Name)] = a.Value
				}
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
			stack = append(stack, n)

		case xml.EndElement:
			name := qualifiedName(t.Name)
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Name == name {
					for _, closed := range stack[i:] {
						closed.finish()
					}
					stack = stack[:i]
					break
				}
			}

		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	for _, open := range stack[1:] {
		if framing[open.Name] {
			return nil, fmt.Errorf("%w: document ends inside <%s>", ErrParse, open.Name)
		}
		open.finish()
	}

	if len(root.Children) == 0 {
		return nil, fmt.Errorf("%w: no elements found", ErrParse)
	}
	return root, nil
}

func (n *Node) finish() {
	n.Text = strings.TrimSpace(n.text.String())
	n.text.Reset()
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
