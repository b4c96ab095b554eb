package eni

import (
	"context"
	"fmt"
	"io"

	"eni-go/internal/protocol"
)

// Gateway decodes one document, answers handshakes directly and hands
// requests to the Dispatcher.
type Gateway struct {
	dispatcher *Dispatcher
	logger     Logger
}

// NewGateway creates a Gateway.
func NewGateway(dispatcher *Dispatcher, logger Logger) *Gateway {
	return &Gateway{dispatcher: dispatcher, logger: logger}
}

// Handle reads one document from r and writes exactly one response document
// to w. A malformed document is returned as an error wrapping
// protocol.ErrMalformedDocument and nothing is written; the transport is
// expected to drop the connection.
func (g *Gateway) Handle(ctx context.Context, sess *Session, r io.Reader, w io.Writer) error {
	root, err := protocol.Decode(r)
	if err != nil {
		return err
	}

	var resp *protocol.Element
	switch root.Tag {
	case protocol.TagHandshake:
		hs, err := protocol.ParseHandshake(root)
		if err != nil {
			return err
		}
		if hs.UserName != "" {
			sess.Bind(hs.UserName)
		}
		g.logger.Info("handshake", "user", hs.UserName, "session", sess.ID)
		resp = protocol.HandshakeResponse(hs.UserName)

	case protocol.TagRequest:
		req, err := protocol.ParseRequest(root)
		if err != nil {
			return err
		}
		if req.UserName != "" && !sess.Bound() {
			sess.Bind(req.UserName)
		}
		resp = g.dispatcher.Dispatch(ctx, sess, req)

	default:
		return fmt.Errorf("%w: unexpected document <%s>", protocol.ErrMalformedDocument, root.Tag)
	}

	if err := protocol.Encode(w, resp); err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return nil
}
