package eni

import (
	"context"

	"eni-go/internal/protocol"
)

type getObjectType struct {
	guid string

	extension   string
	description string
}

func newGetObjectType(req *protocol.Request) (Handler, error) {
	guid, err := fieldsOf(req).required("guid")
	if err != nil {
		return nil, err
	}
	return &getObjectType{guid: guid}, nil
}

// Execute resolves the guid. Unknown guids are not an error; they render
// with an empty extension and description.
func (h *getObjectType) Execute(ctx context.Context, env *Env, sess *Session) error {
	h.extension, h.description = env.Types.ResolveExtension(h.guid)
	return nil
}

func (h *getObjectType) Render() ([]*protocol.Element, []byte) {
	return []*protocol.Element{
		protocol.Field("guid", h.guid),
		protocol.Field("extension", h.extension),
		protocol.Field("description", h.description),
	}, nil
}

type getObjectTypeList struct {
	guids []string
}

func newGetObjectTypeList(*protocol.Request) (Handler, error) {
	return &getObjectTypeList{}, nil
}

func (h *getObjectTypeList) Execute(ctx context.Context, env *Env, sess *Session) error {
	h.guids = env.Types.ListTypes()
	return nil
}

func (h *getObjectTypeList) Render() ([]*protocol.Element, []byte) {
	out := make([]*protocol.Element, 0, len(h.guids))
	for _, g := range h.guids {
		out = append(out, protocol.Field("guid", g))
	}
	return out, nil
}
