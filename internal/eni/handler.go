package eni

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eni-go/internal/protocol"
)

// Command is an ENI command name.
type Command string

const (
	CmdCheckInObject      Command = "check-in-object"
	CmdCheckOutObject     Command = "check-out-object"
	CmdUndoCheckOutObject Command = "undo-check-out-object"
	CmdCreateFolder       Command = "create-folder"
	CmdCreateObject       Command = "create-object"
	CmdDeleteFolder       Command = "delete-folder"
	CmdDeleteObject       Command = "delete-object"
	CmdDir                Command = "dir"
	CmdGetObject          Command = "get-object"
	CmdGetObjectInfo      Command = "get-object-info"
	CmdGetObjectType      Command = "get-object-type"
	CmdGetObjectTypeList  Command = "get-object-type-list"
	CmdGetObjectHistory   Command = "get-object-history"
	CmdGetFolderHistory   Command = "get-folder-history"
	CmdSetFolderLabel     Command = "set-folder-label"
	CmdLogin              Command = "login"
	CmdLogout             Command = "logout"
	CmdGetServerSettings  Command = "get-server-settings"
	CmdGetUsers           Command = "get-users"
	CmdGetPermissions     Command = "get-permissions"
	CmdResetVersion       Command = "reset-version"
	CmdMoveFolder         Command = "move-folder"
	CmdMoveObject         Command = "move-object"
	CmdRegisterTypes      Command = "register-object-types"
)

// Env is everything a handler may touch. It is built once at startup and
// owned by the Dispatcher.
type Env struct {
	Types    *TypeRegistry
	Paths    *Resolver
	VCS      VCS
	Users    *UserTable
	Sessions *SessionRegistry
	Settings ServerSettings
	Logger   Logger
	Clock    Clock
}

// Handler executes one validated command. Execute performs the VCS work and
// keeps its results; Render turns them into the response fields and payload.
type Handler interface {
	Execute(ctx context.Context, env *Env, sess *Session) error
	Render() ([]*protocol.Element, []byte)
}

// HandlerFactory validates a request and builds its handler. Validation
// failures are returned as *ValidationError.
type HandlerFactory func(req *protocol.Request) (Handler, error)

// dateFormat is RFC 1123 with a literal GMT zone.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateFormat)
}

func formatAccess(mask uint16) string {
	return fmt.Sprintf("0x%04X", mask)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// fields reads typed values from a command's parameter subtree.
type fields struct {
	params *protocol.Element
}

func fieldsOf(req *protocol.Request) fields {
	return fields{params: req.Params}
}

// required returns the trimmed text of a field that must be present.
func (f fields) required(name string) (string, error) {
	v, ok := f.params.ChildText(name)
	if !ok {
		return "", &ValidationError{Field: name, Message: "required field is missing"}
	}
	return v, nil
}

// optional returns the trimmed text of a field, or "".
func (f fields) optional(name string) string {
	v, _ := f.params.ChildText(name)
	return v
}

// text returns the untrimmed text of a field, keeping comments verbatim.
func (f fields) text(name string) string {
	if c := f.params.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// flag parses a boolean field; absent means false.
func (f fields) flag(name string) (bool, error) {
	v := strings.ToLower(f.optional(name))
	switch v {
	case "", "false", "0", "no":
		return false, nil
	case "true", "1", "yes":
		return true, nil
	default:
		return false, &ValidationError{Field: name, Message: fmt.Sprintf("not a boolean: %q", v)}
	}
}

// version parses a revision number; absent or empty means Head.
func (f fields) version(name string) (int64, error) {
	v := f.optional(name)
	if v == "" {
		return Head, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: name, Message: fmt.Sprintf("not a revision number: %q", v)}
	}
	return n, nil
}

// path reads a logical path. Empty is accepted only when allowRoot is set;
// parent references are never accepted.
func (f fields) path(name string, allowRoot bool) (string, error) {
	raw, err := f.required(name)
	if err != nil {
		return "", err
	}
	for _, seg := range strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", &ValidationError{Field: name, Message: "parent references are not allowed"}
		}
	}
	p := CleanPath(raw)
	if p == "" && !allowRoot {
		return "", &ValidationError{Field: name, Message: "must not be empty"}
	}
	return p, nil
}

// objectRef reads the object-path and object-type pair.
func (f fields) objectRef() (objectPath, typeID string, err error) {
	if objectPath, err = f.path("object-path", false); err != nil {
		return "", "", err
	}
	if typeID, err = f.required("object-type"); err != nil {
		return "", "", err
	}
	return objectPath, typeID, nil
}

// knownType rejects writes of unregistered types, which would otherwise
// land in the working copy without an extension.
func knownType(env *Env, typeID string) error {
	if !env.Types.Known(typeID) {
		return &ValidationError{Field: "object-type", Message: fmt.Sprintf("unregistered object type %s", typeID)}
	}
	return nil
}
