package eni

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateExtension is returned when an extension is already bound to a
// different type.
var ErrDuplicateExtension = errors.New("extension already registered")

// ObjectType describes one kind of object. TypeID is authoritative; the
// extension is the suffix of the backing file.
type ObjectType struct {
	TypeID      string
	Extension   string
	Description string
}

// TypeRegistry is the bijection between type identifiers and file
// extensions. It is populated once at startup and only read afterwards.
// Type identifiers compare case-insensitively.
type TypeRegistry struct {
	byID  map[string]ObjectType
	byExt map[string]ObjectType
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byID:  make(map[string]ObjectType),
		byExt: make(map[string]ObjectType),
	}
}

// Register adds a type. Registering the same pair again is a no-op and keeps
// the first description.
func (r *TypeRegistry) Register(typeID, extension, description string) error {
	typeID = strings.TrimSpace(typeID)
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if typeID == "" || extension == "" {
		return fmt.Errorf("registering type %q: type id and extension are required", typeID)
	}

	idKey := strings.ToUpper(typeID)
	if existing, ok := r.byExt[extension]; ok && strings.ToUpper(existing.TypeID) != idKey {
		return fmt.Errorf("%w: %q is bound to %s", ErrDuplicateExtension, extension, existing.TypeID)
	}
	if existing, ok := r.byID[idKey]; ok {
		if existing.Extension != extension {
			return fmt.Errorf("registering type %s: already bound to extension %q", typeID, existing.Extension)
		}
		return nil
	}

	t := ObjectType{TypeID: typeID, Extension: extension, Description: description}
	r.byID[idKey] = t
	r.byExt[extension] = t
	return nil
}

// ResolveExtension returns the extension and description for typeID. Unknown
// types resolve to empty strings.
func (r *TypeRegistry) ResolveExtension(typeID string) (extension, description string) {
	t, ok := r.byID[strings.ToUpper(strings.TrimSpace(typeID))]
	if !ok {
		return "", ""
	}
	return t.Extension, t.Description
}

// ResolveType returns the type id registered for extension, or "".
func (r *TypeRegistry) ResolveType(extension string) string {
	return r.byExt[strings.TrimPrefix(extension, ".")].TypeID
}

// Known reports whether typeID is registered.
func (r *TypeRegistry) Known(typeID string) bool {
	_, ok := r.byID[strings.ToUpper(strings.TrimSpace(typeID))]
	return ok
}

// ListTypes returns every registered type id, sorted.
func (r *TypeRegistry) ListTypes() []string {
	ids := make([]string, 0, len(r.byID))
	for _, t := range r.byID {
		ids = append(ids, t.TypeID)
	}
	sort.Strings(ids)
	return ids
}

// Types returns every registered type ordered by type id.
func (r *TypeRegistry) Types() []ObjectType {
	out := make([]ObjectType, 0, len(r.byID))
	for _, id := range r.ListTypes() {
		out = append(out, r.byID[strings.ToUpper(id)])
	}
	return out
}
