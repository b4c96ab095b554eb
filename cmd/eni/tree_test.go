package main

import (
	"strings"
	"testing"

	"eni-go/internal/app"
)

func TestRenderTree(t *testing.T) {
	entries := []app.TreeEntry{
		{Path: "plc", Folder: true},
		{Path: "plc/main", TypeID: "{POU}"},
		{Path: "plc/io", Folder: true},
		{Path: "plc/io/globals", TypeID: "{GVL}"},
		{Path: "readme.txt"},
	}
	exts := map[string]string{"{POU}": "pou", "{GVL}": "gvl"}

	got := renderTree("projects", entries, exts)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if lines[0] != "projects" {
		t.Errorf("first line = %q, want root label", lines[0])
	}
	for _, want := range []string{"plc/", "main.pou", "io/", "globals.gvl", "readme.txt"} {
		if !strings.Contains(got, want) {
			t.Errorf("tree missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "globals.gvl") < strings.Index(got, "io/") {
		t.Errorf("child rendered before its folder:\n%s", got)
	}
}

func TestRenderTree_Empty(t *testing.T) {
	got := renderTree("(root)", nil, nil)
	if strings.TrimSpace(got) != "(root)" {
		t.Errorf("renderTree() = %q, want only the root label", got)
	}
}
