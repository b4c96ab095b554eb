package eni

import (
	"context"
	"errors"
	"fmt"

	"eni-go/internal/protocol"
)

// objectInfoFields renders the object-info shape shared by get-object,
// get-object-info, dir and get-object-history.
func objectInfoFields(objectPath, typeID string, info *Info, access uint16) []*protocol.Element {
	out := []*protocol.Element{
		protocol.Field("object-path", objectPath),
		protocol.Field("object-type", typeID),
	}
	if info != nil {
		var holder, comment string
		if info.Lock != nil {
			holder, comment = info.Lock.Holder, info.Lock.Comment
		}
		out = append(out,
			protocol.Field("change-date", formatDate(info.LastChanged)),
			protocol.Field("checked-out-by", holder),
			protocol.Field("check-out-comment", comment),
		)
	}
	return append(out, protocol.Field("access", formatAccess(access)))
}

// resolveRevision picks the revision a read targets: the one carrying label
// if given, else version (Head when zero). A folder label pins everything
// below the folder, so the label is looked up in the namespace history,
// not in the object's own.
func resolveRevision(ctx context.Context, env *Env, physical string, version int64, label string) (int64, error) {
	if label == "" {
		return version, nil
	}
	revs, err := env.VCS.Log(ctx, env.Paths.Root())
	var nf *NotFoundError
	if err != nil && !errors.As(err, &nf) {
		return 0, fmt.Errorf("reading history: %w", err)
	}
	for _, r := range revs {
		if r.Label == label {
			return r.Number, nil
		}
	}
	return 0, &NotFoundError{Path: fmt.Sprintf("%s@%s", physical, label)}
}

// check-in-object

type checkInObject struct {
	objectPath string
	typeID     string
	comment    string
	data       []byte
}

func newCheckInObject(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	p, t, err := f.objectRef()
	if err != nil {
		return nil, err
	}
	return &checkInObject{objectPath: p, typeID: t, comment: f.text("comment"), data: req.Data}, nil
}

func (h *checkInObject) Execute(ctx context.Context, env *Env, sess *Session) error {
	if err := knownType(env, h.typeID); err != nil {
		return err
	}
	rev, err := env.VCS.WriteAndCommit(ctx, Commit{
		Path:    env.Paths.PhysicalPath(h.objectPath, h.typeID),
		Data:    h.data,
		TypeID:  h.typeID,
		User:    sess.User(),
		Message: h.comment,
	})
	if err != nil {
		return err
	}
	env.Logger.Info("object checked in", "path", h.objectPath, "revision", rev, "user", sess.User())
	return nil
}

func (h *checkInObject) Render() ([]*protocol.Element, []byte) { return nil, nil }

// check-out-object

type checkOutObject struct {
	objectPath string
	typeID     string
	comment    string
}

func newCheckOutObject(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	p, t, err := f.objectRef()
	if err != nil {
		return nil, err
	}
	return &checkOutObject{objectPath: p, typeID: t, comment: f.text("comment")}, nil
}

func (h *checkOutObject) Execute(ctx context.Context, env *Env, sess *Session) error {
	physical := env.Paths.PhysicalPath(h.objectPath, h.typeID)
	if _, err := env.VCS.Lock(ctx, physical, sess.User(), h.comment); err != nil {
		return err
	}
	env.Logger.Info("object checked out", "path", h.objectPath, "user", sess.User())
	return nil
}

func (h *checkOutObject) Render() ([]*protocol.Element, []byte) { return nil, nil }

// undo-check-out-object

type undoCheckOutObject struct {
	objectPath string
	typeID     string
}

func newUndoCheckOutObject(req *protocol.Request) (Handler, error) {
	p, t, err := fieldsOf(req).objectRef()
	if err != nil {
		return nil, err
	}
	return &undoCheckOutObject{objectPath: p, typeID: t}, nil
}

func (h *undoCheckOutObject) Execute(ctx context.Context, env *Env, sess *Session) error {
	return env.VCS.Unlock(ctx, env.Paths.PhysicalPath(h.objectPath, h.typeID), sess.User())
}

func (h *undoCheckOutObject) Render() ([]*protocol.Element, []byte) { return nil, nil }

// create-object

type createObject struct {
	objectPath string
	typeID     string
	noHistory  bool
	data       []byte
}

func newCreateObject(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	p, t, err := f.objectRef()
	if err != nil {
		return nil, err
	}
	noHistory, err := f.flag("no-history")
	if err != nil {
		return nil, err
	}
	return &createObject{objectPath: p, typeID: t, noHistory: noHistory, data: req.Data}, nil
}

func (h *createObject) Execute(ctx context.Context, env *Env, sess *Session) error {
	if err := knownType(env, h.typeID); err != nil {
		return err
	}
	if h.noHistory {
		// History is always recorded; the flag has no storage effect.
		env.Logger.Debug("no-history requested", "path", h.objectPath)
	}
	rev, err := env.VCS.WriteAndCommit(ctx, Commit{
		Path:   env.Paths.PhysicalPath(h.objectPath, h.typeID),
		Data:   h.data,
		TypeID: h.typeID,
		User:   sess.User(),
	})
	if err != nil {
		return err
	}
	env.Logger.Info("object created", "path", h.objectPath, "type", h.typeID, "revision", rev)
	return nil
}

func (h *createObject) Render() ([]*protocol.Element, []byte) { return nil, nil }

// get-object and get-object-info

type getObject struct {
	objectPath  string
	typeID      string
	version     int64
	label       string
	withContent bool

	info *Info
	data []byte
	acc  uint16
}

func newGetObject(req *protocol.Request) (Handler, error) {
	return parseGetObject(req, true)
}

func newGetObjectInfo(req *protocol.Request) (Handler, error) {
	return parseGetObject(req, false)
}

func parseGetObject(req *protocol.Request, withContent bool) (Handler, error) {
	f := fieldsOf(req)
	p, t, err := f.objectRef()
	if err != nil {
		return nil, err
	}
	version, err := f.version("version")
	if err != nil {
		return nil, err
	}
	return &getObject{
		objectPath:  p,
		typeID:      t,
		version:     version,
		label:       f.optional("label"),
		withContent: withContent,
	}, nil
}

func (h *getObject) Execute(ctx context.Context, env *Env, sess *Session) error {
	physical := env.Paths.PhysicalPath(h.objectPath, h.typeID)
	rev, err := resolveRevision(ctx, env, physical, h.version, h.label)
	if err != nil {
		return err
	}

	if h.withContent {
		if h.data, err = env.VCS.Read(ctx, physical, rev); err != nil {
			return err
		}
	}
	if h.info, err = env.VCS.Info(ctx, physical, rev); err != nil {
		return err
	}
	h.acc = env.Settings.ObjectAccess
	return nil
}

func (h *getObject) Render() ([]*protocol.Element, []byte) {
	return objectInfoFields(h.objectPath, h.typeID, h.info, h.acc), h.data
}
