package protocol

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Root tags of the documents exchanged with ENI clients.
const (
	TagHandshake = "handshake"
	TagRequest   = "request"
	TagResponse  = "response"
	TagData      = "data"
)

// zeroFingerprint is echoed for both handshake fingerprints; identities are
// not verified.
const zeroFingerprint = "00000000000000000000000000000000"

// Handshake is the session-identity exchange preceding command traffic.
type Handshake struct {
	UserName string
}

// Request is a decoded command document.
type Request struct {
	Command  string
	UserName string
	// Params is the <command> subtree. It is never nil; an absent subtree
	// decodes to an empty element so field lookups simply miss.
	Params *Element
	Data   []byte
}

// ParseHandshake reads a <handshake user-name="U"/> document.
func ParseHandshake(root *Element) (*Handshake, error) {
	if root.Tag != TagHandshake {
		return nil, fmt.Errorf("%w: expected <%s>, got <%s>", ErrMalformedDocument, TagHandshake, root.Tag)
	}
	user, _ := root.Attr("user-name")
	return &Handshake{UserName: user}, nil
}

// ParseRequest reads a <request command="C"><C>…</C><data>…</data></request>
// document.
func ParseRequest(root *Element) (*Request, error) {
	if root.Tag != TagRequest {
		return nil, fmt.Errorf("%w: expected <%s>, got <%s>", ErrMalformedDocument, TagRequest, root.Tag)
	}
	command, ok := root.Attr("command")
	if !ok || strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("%w: request without command", ErrMalformedDocument)
	}

	req := &Request{Command: strings.TrimSpace(command)}
	req.UserName, _ = root.Attr("user-name")

	req.Params = root.Child(req.Command)
	if req.Params == nil {
		req.Params = NewElement(req.Command)
	}

	if d := root.Child(TagData); d != nil {
		data, err := DecodeData(d.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		req.Data = data
	}
	return req, nil
}

// DecodeData decodes a base64 payload, tolerating line breaks and padding
// whitespace inside <data>.
func DecodeData(text string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, text)
	if compact == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decoding data payload: %w", err)
	}
	return data, nil
}

// HandshakeResponse echoes the user name with all-zero fingerprints.
func HandshakeResponse(userName string) *Element {
	return NewElement(TagHandshake).
		SetAttr("user-name", userName).
		SetAttr("fingerprint-1", zeroFingerprint).
		SetAttr("fingerprint-2", zeroFingerprint)
}

// SuccessResponse builds
// <response command="C"><success/><C>fields…</C><data>base64</data></response>.
func SuccessResponse(command string, fields []*Element, data []byte) *Element {
	return NewElement(TagResponse).
		SetAttr("command", command).
		Add(
			NewElement("success"),
			Group(command, fields...),
			dataElement(data),
		)
}

// ErrorResponse builds
// <response command="C"><error><error-code>N</error-code><error-text>TEXT (N)</error-text></error><data/></response>.
func ErrorResponse(command string, code int, text string) *Element {
	return NewElement(TagResponse).
		SetAttr("command", command).
		Add(
			Group("error",
				Field("error-code", strconv.Itoa(code)),
				Field("error-text", fmt.Sprintf("%s (%d)", text, code)),
			),
			dataElement(nil),
		)
}

func dataElement(data []byte) *Element {
	if len(data) == 0 {
		return NewElement(TagData)
	}
	return Field(TagData, base64.StdEncoding.EncodeToString(data))
}
