// Package protocol owns the ENI wire documents.
//
// A document is decoded into a generic Element tree; the command layer reads
// fields from that tree and hands back ordered field lists which are encoded
// as handshake, success or error responses.
package protocol

import "strings"

// Attr is a single element attribute. Attribute order is preserved.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a decoded document.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// NewElement creates an empty element.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// Field creates a leaf element carrying text.
func Field(tag, text string) *Element {
	return &Element{Tag: tag, Text: text}
}

// Group creates an element holding the given children in order.
func Group(tag string, children ...*Element) *Element {
	return &Element{Tag: tag, Children: children}
}

// SetAttr sets or replaces an attribute and returns the element.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Add appends children and returns the element.
func (e *Element) Add(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Child returns the first child with the given tag, or nil.
func (e *Element) Child(tag string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenByTag returns all children with the given tag.
func (e *Element) ChildrenByTag(tag string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the trimmed text of the first child with the given tag.
// The boolean reports whether the child exists at all; an existing but empty
// child yields ("", true).
func (e *Element) ChildText(tag string) (string, bool) {
	c := e.Child(tag)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.Text), true
}
