package protocol

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Header is written in front of every encoded document.
const Header = `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n"

var (
	ErrMalformedDocument = errors.New("protocol: malformed document")
	ErrUnsupportedCharset = errors.New("protocol: unsupported charset")
)

// Decode reads exactly one document and returns its root element.
// Character data directly inside an element is concatenated into Text;
// comments, processing instructions and directives are dropped.
func Decode(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var (
		root  *Element
		stack []*Element
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedDocument)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	return root, nil
}

// charsetReader resolves the encoding named in the XML declaration.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharset, label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Encode writes root as a latin-1 document preceded by Header.
// Characters outside latin-1 are replaced rather than failing the response.
func Encode(w io.Writer, root *Element) error {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	tw := transform.NewWriter(w, enc)
	bw := bufio.NewWriter(tw)

	if _, err := bw.WriteString(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := writeElement(bw, root); err != nil {
		return fmt.Errorf("writing %s: %w", root.Tag, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing document: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("flushing document: %w", err)
	}
	return nil
}

// EncodeString is Encode into a string; used by tests and the CLI.
func EncodeString(root *Element) (string, error) {
	var sb strings.Builder
	if err := Encode(&sb, root); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// writeElement emits empty elements in the short form (<success/>) the ENI
// clients expect and puts every child element on its own line.
func writeElement(w *bufio.Writer, e *Element) error {
	w.WriteByte('<')
	w.WriteString(e.Tag)
	for _, a := range e.Attrs {
		w.WriteByte(' ')
		w.WriteString(a.Name)
		w.WriteString(`="`)
		if err := xml.EscapeText(w, []byte(a.Value)); err != nil {
			return err
		}
		w.WriteByte('"')
	}

	if len(e.Children) == 0 && e.Text == "" {
		_, err := w.WriteString("/>")
		return err
	}
	w.WriteByte('>')

	if e.Text != "" {
		if err := xml.EscapeText(w, []byte(e.Text)); err != nil {
			return err
		}
	}
	if len(e.Children) > 0 {
		w.WriteByte('\n')
		for _, c := range e.Children {
			if err := writeElement(w, c); err != nil {
				return err
			}
			w.WriteByte('\n')
		}
	}

	w.WriteString("</")
	w.WriteString(e.Tag)
	_, err := w.WriteString(">")
	return err
}
