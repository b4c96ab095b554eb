package main

import (
	"path"

	"github.com/disiqueira/gotree/v3"

	"eni-go/internal/app"
)

// renderTree draws namespace entries below rootLabel. Entries must list
// parents before children.
func renderTree(rootLabel string, entries []app.TreeEntry, extensions map[string]string) string {
	root := gotree.New(rootLabel)
	folders := map[string]gotree.Tree{"": root, ".": root}

	parent := func(p string) gotree.Tree {
		dir := path.Dir(p)
		if t, ok := folders[dir]; ok {
			return t
		}
		return root
	}

	for _, e := range entries {
		name := path.Base(e.Path)
		if e.Folder {
			folders[e.Path] = parent(e.Path).Add(name + "/")
			continue
		}
		if ext := extensions[e.TypeID]; ext != "" {
			name += "." + ext
		}
		parent(e.Path).Add(name)
	}
	return root.Print()
}
