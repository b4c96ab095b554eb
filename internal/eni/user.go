package eni

import (
	"sort"
	"strings"
)

// AnonymousUser acts for sessions that never declared a user.
const AnonymousUser = "anonymous"

// User is a declared gateway user.
type User struct {
	Name        string
	FullName    string
	Description string
}

// UserTable is the read-only table of declared users, keyed
// case-insensitively by name.
type UserTable struct {
	users map[string]User
}

// NewUserTable builds a table from users. Later duplicates win.
func NewUserTable(users []User) *UserTable {
	t := &UserTable{users: make(map[string]User, len(users))}
	for _, u := range users {
		t.users[strings.ToLower(u.Name)] = u
	}
	return t
}

// Find returns the user named name.
func (t *UserTable) Find(name string) (User, bool) {
	u, ok := t.users[strings.ToLower(strings.TrimSpace(name))]
	return u, ok
}

// List returns all users sorted by name.
func (t *UserTable) List() []User {
	out := make([]User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ServerSettings are reported by get-server-settings and get-permissions.
type ServerSettings struct {
	CommTimeout      int
	IdleInterval     int
	AllowAnonymous   bool
	ClientExpiration int
	MaxTrials        int
	ActiveDriver     string
	ObjectAccess     uint16
	FolderAccess     uint16
}

// DefaultServerSettings mirrors a stock ENI server.
func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		CommTimeout:      60,
		IdleInterval:     300,
		AllowAnonymous:   true,
		ClientExpiration: 0,
		MaxTrials:        3,
		ActiveDriver:     "git",
		ObjectAccess:     0x0700,
		FolderAccess:     0x0FFF,
	}
}
