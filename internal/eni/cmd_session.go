package eni

import (
	"context"
	"fmt"
	"strconv"

	"eni-go/internal/protocol"
)

// login

type login struct {
	user string
}

func newLogin(req *protocol.Request) (Handler, error) {
	user := fieldsOf(req).optional("user-name")
	if user == "" {
		user = req.UserName
	}
	return &login{user: user}, nil
}

// Execute binds the user to the session and synchronizes the working copy.
// Unless anonymous access is allowed the user must be declared.
func (h *login) Execute(ctx context.Context, env *Env, sess *Session) error {
	if !env.Settings.AllowAnonymous {
		if _, ok := env.Users.Find(h.user); !ok {
			return &ValidationError{Field: "user-name", Message: fmt.Sprintf("unknown user %q", h.user)}
		}
	}
	if h.user != "" {
		sess.Bind(h.user)
	}
	if err := env.VCS.Sync(ctx); err != nil {
		return err
	}
	env.Logger.Info("user logged in", "user", sess.User(), "session", sess.ID)
	return nil
}

func (h *login) Render() ([]*protocol.Element, []byte) { return nil, nil }

// logout

type logout struct{}

func newLogout(*protocol.Request) (Handler, error) { return logout{}, nil }

func (logout) Execute(ctx context.Context, env *Env, sess *Session) error {
	env.Logger.Info("user logged out", "user", sess.User(), "session", sess.ID)
	sess.Unbind()
	return nil
}

func (logout) Render() ([]*protocol.Element, []byte) { return nil, nil }

// get-server-settings

type getServerSettings struct {
	settings ServerSettings
}

func newGetServerSettings(*protocol.Request) (Handler, error) {
	return &getServerSettings{}, nil
}

func (h *getServerSettings) Execute(ctx context.Context, env *Env, sess *Session) error {
	h.settings = env.Settings
	return nil
}

func (h *getServerSettings) Render() ([]*protocol.Element, []byte) {
	s := h.settings
	return []*protocol.Element{
		protocol.Field("comm-timeout", strconv.Itoa(s.CommTimeout)),
		protocol.Field("idle-interval", strconv.Itoa(s.IdleInterval)),
		protocol.Field("allow-anonymous", formatBool(s.AllowAnonymous)),
		protocol.Field("client-expiration", strconv.Itoa(s.ClientExpiration)),
		protocol.Field("max-trials", strconv.Itoa(s.MaxTrials)),
		protocol.Field("active-driver", s.ActiveDriver),
	}, nil
}

// get-users

type getUsers struct {
	users []*protocol.Element
}

func newGetUsers(*protocol.Request) (Handler, error) {
	return &getUsers{}, nil
}

func (h *getUsers) Execute(ctx context.Context, env *Env, sess *Session) error {
	for _, u := range env.Users.List() {
		h.users = append(h.users, protocol.Group("user",
			protocol.Field("name", u.Name),
			protocol.Field("full-name", u.FullName),
			protocol.Field("description", u.Description),
			protocol.Field("active", formatBool(true)),
			protocol.Field("logged-in", formatBool(env.Sessions.LoggedIn(u.Name))),
		))
	}
	return nil
}

func (h *getUsers) Render() ([]*protocol.Element, []byte) { return h.users, nil }

// get-permissions

type getPermissions struct {
	objectPath string
	typeID     string
	folderPath string
	hasFolder  bool

	fields []*protocol.Element
}

func newGetPermissions(req *protocol.Request) (Handler, error) {
	f := fieldsOf(req)
	h := &getPermissions{}
	if _, ok := req.Params.ChildText("object-path"); ok {
		p, t, err := f.objectRef()
		if err != nil {
			return nil, err
		}
		h.objectPath, h.typeID = p, t
		return h, nil
	}
	if _, ok := req.Params.ChildText("folder-path"); ok {
		p, err := f.path("folder-path", true)
		if err != nil {
			return nil, err
		}
		h.folderPath, h.hasFolder = p, true
	}
	return h, nil
}

// Execute reports the configured access masks; permissions are not
// tracked per path.
func (h *getPermissions) Execute(ctx context.Context, env *Env, sess *Session) error {
	switch {
	case h.objectPath != "":
		h.fields = objectInfoFields(h.objectPath, h.typeID, nil, env.Settings.ObjectAccess)
	case h.hasFolder:
		h.fields = folderInfoFields(h.folderPath, env.Settings.FolderAccess)
	default:
		h.fields = []*protocol.Element{protocol.Field("access", formatAccess(env.Settings.FolderAccess))}
	}
	return nil
}

func (h *getPermissions) Render() ([]*protocol.Element, []byte) { return h.fields, nil }
