package eni

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *TypeRegistry {
	t.Helper()
	r := NewTypeRegistry()
	if err := r.Register("{AAAA}", "pou", "Program"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"plc/main", "plc/main"},
		{"/plc/main/", "plc/main"},
		{`plc\lib\timer`, "plc/lib/timer"},
		{"plc//main", "plc/main"},
		{"  plc/main  ", "plc/main"},
		{"./plc/./main", "plc/main"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CleanPath(tt.in); got != tt.want {
				t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolver_RoundTrip(t *testing.T) {
	types := testRegistry(t)

	tests := []struct {
		name     string
		root     string
		logical  string
		typeID   string
		physical string
	}{
		{name: "object at top", logical: "main", typeID: "{AAAA}", physical: "main.pou"},
		{name: "nested object", logical: "plc/lib/timer", typeID: "{AAAA}", physical: "plc/lib/timer.pou"},
		{name: "folder", logical: "plc/lib", physical: "plc/lib"},
		{name: "object under root", root: "projects/line1", logical: "plc/main", typeID: "{AAAA}", physical: "projects/line1/plc/main.pou"},
		{name: "folder under root", root: "projects", logical: "plc", physical: "projects/plc"},
		{name: "root itself", root: "projects", logical: "", physical: "projects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.root, types)

			physical := r.PhysicalPath(tt.logical, tt.typeID)
			if physical != tt.physical {
				t.Fatalf("PhysicalPath() = %q, want %q", physical, tt.physical)
			}

			logical, typeID, err := r.LogicalPath(physical)
			if err != nil {
				t.Fatalf("LogicalPath() error = %v", err)
			}
			if logical != tt.logical {
				t.Errorf("LogicalPath() path = %q, want %q", logical, tt.logical)
			}
			if typeID != tt.typeID {
				t.Errorf("LogicalPath() type = %q, want %q", typeID, tt.typeID)
			}
		})
	}
}

func TestResolver_UnknownExtension(t *testing.T) {
	r := NewResolver("", testRegistry(t))

	logical, typeID, err := r.LogicalPath("docs/readme.txt")
	if err != nil {
		t.Fatalf("LogicalPath() error = %v", err)
	}
	if logical != "docs/readme.txt" || typeID != "" {
		t.Errorf("LogicalPath() = %q, %q, want unchanged name and no type", logical, typeID)
	}

	if got := r.PhysicalPath("docs/readme", "{FFFF}"); got != "docs/readme" {
		t.Errorf("PhysicalPath() with unknown type = %q, want no extension", got)
	}
}

func TestResolver_OutsideRoot(t *testing.T) {
	r := NewResolver("projects", testRegistry(t))

	_, _, err := r.LogicalPath("elsewhere/main.pou")

	var malformed *MalformedPathError
	if !errors.As(err, &malformed) {
		t.Fatalf("LogicalPath() error = %v, want MalformedPathError", err)
	}
	if malformed.Root != "projects" {
		t.Errorf("Root = %q, want projects", malformed.Root)
	}
}

func TestResolver_LogicalEntry(t *testing.T) {
	r := NewResolver("projects", testRegistry(t))

	tests := []struct {
		name    string
		entry   Entry
		logical string
		typeID  string
	}{
		{name: "object", entry: Entry{Path: "projects/lib/main.pou", Kind: EntryFile}, logical: "lib/main", typeID: "{AAAA}"},
		{name: "plain folder", entry: Entry{Path: "projects/lib", Kind: EntryFolder}, logical: "lib"},
		{name: "folder with object extension", entry: Entry{Path: "projects/Lib.pou", Kind: EntryFolder}, logical: "Lib.pou"},
		{name: "object inside such a folder", entry: Entry{Path: "projects/Lib.pou/main.pou", Kind: EntryFile}, logical: "Lib.pou/main", typeID: "{AAAA}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logical, typeID, err := r.LogicalEntry(tt.entry)
			if err != nil {
				t.Fatalf("LogicalEntry() error = %v", err)
			}
			if logical != tt.logical || typeID != tt.typeID {
				t.Errorf("LogicalEntry() = %q, %q, want %q, %q", logical, typeID, tt.logical, tt.typeID)
			}
			if tt.entry.Kind == EntryFolder && r.PhysicalPath(logical, "") != tt.entry.Path {
				t.Errorf("PhysicalPath(%q) = %q, want %q", logical, r.PhysicalPath(logical, ""), tt.entry.Path)
			}
		})
	}
}
