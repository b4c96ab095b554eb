package eni

import (
	"context"
	"fmt"
	"strconv"

	"eni-go/internal/protocol"
)

func folderInfoFields(folderPath string, access uint16) []*protocol.Element {
	return []*protocol.Element{
		protocol.Field("folder-path", folderPath),
		protocol.Field("access", formatAccess(access)),
	}
}

// create-folder

type createFolder struct {
	folderPath string
}

func newCreateFolder(req *protocol.Request) (Handler, error) {
	p, err := fieldsOf(req).path("folder-path", false)
	if err != nil {
		return nil, err
	}
	return &createFolder{folderPath: p}, nil
}

func (h *createFolder) Execute(ctx context.Context, env *Env, sess *Session) error {
	physical := env.Paths.PhysicalPath(h.folderPath, "")
	msg := fmt.Sprintf("create folder %s", h.folderPath)
	if err := env.VCS.MakeFolder(ctx, physical, sess.User(), msg); err != nil {
		return err
	}
	env.Logger.Info("folder created", "path", h.folderPath, "user", sess.User())
	return nil
}

func (h *createFolder) Render() ([]*protocol.Element, []byte) { return nil, nil }

// dir

type dir struct {
	rootPath     string
	recursive    bool
	foldersOnly  bool
	noChangeDate bool

	entries []*protocol.Element
}

func newDir(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	h := &dir{}
	var err error
	if h.rootPath, err = f.path("root-path", true); err != nil {
		return nil, err
	}
	if h.recursive, err = f.flag("recursive"); err != nil {
		return nil, err
	}
	if h.foldersOnly, err = f.flag("folders-only"); err != nil {
		return nil, err
	}
	if h.noChangeDate, err = f.flag("no-change-date"); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *dir) Execute(ctx context.Context, env *Env, sess *Session) error {
	entries, err := env.VCS.List(ctx, env.Paths.PhysicalPath(h.rootPath, ""), h.recursive, h.foldersOnly)
	if err != nil {
		return err
	}

	for _, e := range entries {
		logical, typeID, err := env.Paths.LogicalEntry(e)
		if err != nil {
			return err
		}

		if e.Kind == EntryFolder {
			h.entries = append(h.entries, protocol.Group("object-info", folderInfoFields(logical, env.Settings.FolderAccess)...))
			continue
		}

		if typeID == "" {
			env.Logger.Warn("unrecognized object extension", "path", e.Path)
		}
		var info *Info
		if !h.noChangeDate {
			if info, err = env.VCS.Info(ctx, e.Path, Head); err != nil {
				return err
			}
		}
		h.entries = append(h.entries, protocol.Group("object-info", objectInfoFields(logical, typeID, info, env.Settings.ObjectAccess)...))
	}
	return nil
}

func (h *dir) Render() ([]*protocol.Element, []byte) { return h.entries, nil }

// set-folder-label

type setFolderLabel struct {
	folderPath string
	label      string
	comment    string
}

func newSetFolderLabel(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	p, err := f.path("folder-path", true)
	if err != nil {
		return nil, err
	}
	label, err := f.required("label")
	if err != nil {
		return nil, err
	}
	if label == "" {
		return nil, &ValidationError{Field: "label", Message: "must not be empty"}
	}
	return &setFolderLabel{folderPath: p, label: label, comment: f.text("comment")}, nil
}

func (h *setFolderLabel) Execute(ctx context.Context, env *Env, sess *Session) error {
	rev, err := env.VCS.SetLabel(ctx, env.Paths.PhysicalPath(h.folderPath, ""), h.label, h.comment)
	if err != nil {
		return err
	}
	env.Logger.Info("folder labeled", "path", h.folderPath, "label", h.label, "revision", rev)
	return nil
}

func (h *setFolderLabel) Render() ([]*protocol.Element, []byte) { return nil, nil }

// get-object-history and get-folder-history

type history struct {
	objectPath string
	typeID     string
	folder     bool

	info *Info
	revs []Revision
	acc  uint16
}

func newGetObjectHistory(req *protocol.Request) (Handler, error) {
	p, t, err := fieldsOf(req).objectRef()
	if err != nil {
		return nil, err
	}
	return &history{objectPath: p, typeID: t}, nil
}

func newGetFolderHistory(req *protocol.Request) (Handler, error) {
	p, err := fieldsOf(req).path("folder-path", true)
	if err != nil {
		return nil, err
	}
	return &history{objectPath: p, folder: true}, nil
}

func (h *history) Execute(ctx context.Context, env *Env, sess *Session) error {
	physical := env.Paths.PhysicalPath(h.objectPath, h.typeID)

	var err error
	if h.revs, err = env.VCS.Log(ctx, physical); err != nil {
		return err
	}
	if h.folder {
		h.acc = env.Settings.FolderAccess
		return nil
	}
	if h.info, err = env.VCS.Info(ctx, physical, Head); err != nil {
		return err
	}
	h.acc = env.Settings.ObjectAccess
	return nil
}

// Render emits the path's info followed by one version entry per revision,
// newest first.
func (h *history) Render() ([]*protocol.Element, []byte) {
	var head *protocol.Element
	if h.folder {
		head = protocol.Group("object-info", folderInfoFields(h.objectPath, h.acc)...)
	} else {
		head = protocol.Group("object-info", objectInfoFields(h.objectPath, h.typeID, h.info, h.acc)...)
	}

	out := []*protocol.Element{head}
	for i, r := range h.revs {
		action := "checked-in"
		if i == len(h.revs)-1 {
			action = "created"
		}
		v := protocol.Group("version", protocol.Field("version", strconv.FormatInt(r.Number, 10)))
		if r.Label != "" {
			v.Add(protocol.Field("label", r.Label))
		}
		v.Add(
			protocol.Field("date", formatDate(r.Date)),
			protocol.Field("comment", r.Message),
			protocol.Field("action", action),
			protocol.Field("user-name", r.Author),
			protocol.Field("pinned", formatBool(false)),
		)
		out = append(out, v)
	}
	return out, nil
}
