package tool

import (
	"context"
	"errors"
	"testing"
)

// stubTool is a minimal Tool for testing.
type stubTool struct {
	name   string
	result any
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub tool" }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) Execute(_ context.Context, params map[string]any) (any, error) {
	return s.result, nil
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubTool{name: "echo", result: map[string]any{"ok": true}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !reg.Has("echo") {
		t.Fatal("expected registry to have 'echo'")
	}
	if reg.Has("missing") {
		t.Fatal("expected registry to not have 'missing'")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected len 1, got %d", reg.Len())
	}

	result, err := reg.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := result.(map[string]any); !ok || m["ok"] != true {
		t.Errorf("expected structured result, got %#v", result)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "dup"})
	if err := reg.Register(&stubTool{name: "dup"}); err == nil {
		t.Fatal("expected error registering a duplicate name")
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "b"})
	reg.Register(&stubTool{name: "a"})
	reg.Register(&stubTool{name: "c"})

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if defs[i].Type != "function" {
			t.Errorf("expected type 'function', got %q", defs[i].Type)
		}
		if defs[i].Name != want {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Name, want)
		}
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "temp"})
	reg.Unregister("temp")
	if reg.Has("temp") {
		t.Fatal("expected tool to be unregistered")
	}
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "y"})
	reg.Register(&stubTool{name: "x"})

	names := reg.List()
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("List = %v", names)
	}
}
