package eni

import (
	"context"

	"eni-go/internal/protocol"
)

// placeholder acknowledges commands that are accepted on the wire but not
// carried out: deletes, moves, version resets and type registration. They
// succeed without touching the working copy and are logged at WARN.
type placeholder struct {
	command Command
	params  []string
}

func newPlaceholder(cmd Command) HandlerFactory {
	return func(req *protocol.Request) (Handler, error) {
		h := &placeholder{command: cmd}
		for _, c := range req.Params.Children {
			h.params = append(h.params, c.Tag, c.Text)
		}
		return h, nil
	}
}

func (h *placeholder) Execute(ctx context.Context, env *Env, sess *Session) error {
	env.Logger.Warn("placeholder command, no state change",
		"command", string(h.command), "user", sess.User(), "params", h.params)
	return nil
}

func (h *placeholder) Render() ([]*protocol.Element, []byte) { return nil, nil }
