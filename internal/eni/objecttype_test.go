package eni

import (
	"errors"
	"testing"
)

func TestTypeRegistry_Register(t *testing.T) {
	t.Run("resolves both directions", func(t *testing.T) {
		r := NewTypeRegistry()
		if err := r.Register("{AAAA}", ".pou", "Program"); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		ext, desc := r.ResolveExtension("{aaaa}")
		if ext != "pou" || desc != "Program" {
			t.Errorf("ResolveExtension() = %q, %q, want pou, Program", ext, desc)
		}
		if got := r.ResolveType("pou"); got != "{AAAA}" {
			t.Errorf("ResolveType() = %q, want {AAAA}", got)
		}
		if !r.Known(" {AAAA} ") {
			t.Error("Known() = false for registered type")
		}
	})

	t.Run("same pair twice is a no-op", func(t *testing.T) {
		r := NewTypeRegistry()
		if err := r.Register("{AAAA}", "pou", "Program"); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if err := r.Register("{aaaa}", "pou", "Renamed"); err != nil {
			t.Errorf("second Register() error = %v", err)
		}
		if n := len(r.ListTypes()); n != 1 {
			t.Errorf("len(ListTypes()) = %d, want 1", n)
		}
		if _, desc := r.ResolveExtension("{AAAA}"); desc != "Program" {
			t.Errorf("description = %q, want the first one kept", desc)
		}
		if got := r.ResolveType("pou"); got != "{AAAA}" {
			t.Errorf("ResolveType() = %q, want the first spelling kept", got)
		}
	})

	t.Run("extension bound to another type", func(t *testing.T) {
		r := NewTypeRegistry()
		if err := r.Register("{AAAA}", "pou", ""); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		err := r.Register("{BBBB}", "pou", "")
		if !errors.Is(err, ErrDuplicateExtension) {
			t.Errorf("Register() error = %v, want ErrDuplicateExtension", err)
		}
	})

	t.Run("type bound to another extension", func(t *testing.T) {
		r := NewTypeRegistry()
		if err := r.Register("{AAAA}", "pou", ""); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if err := r.Register("{AAAA}", "gvl", ""); err == nil {
			t.Error("Register() expected error for rebinding a type")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		r := NewTypeRegistry()
		if err := r.Register("", "pou", ""); err == nil {
			t.Error("Register() expected error for empty type id")
		}
		if err := r.Register("{AAAA}", " ", ""); err == nil {
			t.Error("Register() expected error for empty extension")
		}
	})
}

func TestTypeRegistry_Unknown(t *testing.T) {
	r := NewTypeRegistry()

	ext, desc := r.ResolveExtension("{FFFF}")
	if ext != "" || desc != "" {
		t.Errorf("ResolveExtension() = %q, %q, want empty", ext, desc)
	}
	if got := r.ResolveType("txt"); got != "" {
		t.Errorf("ResolveType() = %q, want empty", got)
	}
	if r.Known("{FFFF}") {
		t.Error("Known() = true for unregistered type")
	}
}

func TestTypeRegistry_ListTypes(t *testing.T) {
	r := NewTypeRegistry()
	for _, ty := range []ObjectType{
		{TypeID: "{CCCC}", Extension: "tsk"},
		{TypeID: "{AAAA}", Extension: "pou"},
		{TypeID: "{BBBB}", Extension: "gvl"},
	} {
		if err := r.Register(ty.TypeID, ty.Extension, ty.Description); err != nil {
			t.Fatalf("Register(%s) error = %v", ty.TypeID, err)
		}
	}

	ids := r.ListTypes()
	want := []string{"{AAAA}", "{BBBB}", "{CCCC}"}
	if len(ids) != len(want) {
		t.Fatalf("ListTypes() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListTypes()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	types := r.Types()
	if types[0].Extension != "pou" || types[2].Extension != "tsk" {
		t.Errorf("Types() order = %+v", types)
	}
}
