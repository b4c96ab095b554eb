package eni

import (
	"path"
	"strings"
)

// Resolver maps logical object paths to physical paths inside the working
// copy and back. Physical paths are slash-separated and relative to the
// working copy; root is the directory that holds the object namespace ("" for
// the working copy itself).
type Resolver struct {
	root  string
	types *TypeRegistry
}

// NewResolver creates a Resolver rooted at root.
func NewResolver(root string, types *TypeRegistry) *Resolver {
	return &Resolver{root: CleanPath(root), types: types}
}

// Root returns the physical root of the namespace.
func (r *Resolver) Root() string {
	return r.root
}

// CleanPath normalizes a logical path: backslashes become slashes, duplicate
// separators collapse, and leading or trailing separators are dropped. The
// namespace root is "".
func CleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

// PhysicalPath returns root/objectPath.ext. Folders and unknown types get no
// extension.
func (r *Resolver) PhysicalPath(objectPath, typeID string) string {
	p := path.Join(r.root, CleanPath(objectPath))
	if p == "." || p == "/" {
		p = ""
	}
	p = strings.TrimPrefix(p, "/")
	if ext, _ := r.types.ResolveExtension(typeID); ext != "" && p != "" {
		p += "." + ext
	}
	return p
}

// LogicalPath strips the root and a registered extension from physical and
// reports the type bound to that extension. Names with unregistered
// extensions are returned unchanged with an empty type.
func (r *Resolver) LogicalPath(physical string) (objectPath, typeID string, err error) {
	p, err := r.stripRoot(physical)
	if err != nil {
		return "", "", err
	}

	base := path.Base(p)
	if dot := strings.LastIndex(base, "."); dot > 0 {
		if id := r.types.ResolveType(base[dot+1:]); id != "" {
			return p[:len(p)-len(base)+dot], id, nil
		}
	}
	return p, "", nil
}

// LogicalFolder strips only the root. Folder names keep any dot suffix, so a
// folder called "Lib.pou" stays "Lib.pou".
func (r *Resolver) LogicalFolder(physical string) (string, error) {
	return r.stripRoot(physical)
}

// LogicalEntry resolves a listing entry with the rule for its kind.
func (r *Resolver) LogicalEntry(e Entry) (logical, typeID string, err error) {
	if e.Kind == EntryFolder {
		logical, err = r.LogicalFolder(e.Path)
		return logical, "", err
	}
	return r.LogicalPath(e.Path)
}

func (r *Resolver) stripRoot(physical string) (string, error) {
	p := strings.TrimPrefix(strings.ReplaceAll(physical, `\`, "/"), "/")
	if r.root != "" {
		switch {
		case p == r.root:
			p = ""
		case strings.HasPrefix(p, r.root+"/"):
			p = p[len(r.root)+1:]
		default:
			return "", &MalformedPathError{Path: physical, Root: r.root}
		}
	}
	return strings.TrimPrefix(p, "/"), nil
}
