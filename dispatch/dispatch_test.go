package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	table := NewTable()
	table.Register("tasks", "list", func(ctx context.Context, args map[string]any) (any, error) {
		return []string{"a", "b"}, nil
	})

	fn, ok := table.Lookup("tasks.list")
	if !ok {
		t.Fatal("expected tasks.list to resolve")
	}
	result, err := fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(result, []string{"a", "b"}) {
		t.Errorf("result = %v", result)
	}

	if _, ok := table.Lookup("tasks.create"); ok {
		t.Error("unregistered key should not resolve")
	}
}

func TestRegisterReplaces(t *testing.T) {
	table := NewTable()
	table.Register("kv", "get", func(ctx context.Context, args map[string]any) (any, error) {
		return "old", nil
	})
	table.Register("kv", "get", func(ctx context.Context, args map[string]any) (any, error) {
		return "new", nil
	})

	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
	fn, _ := table.Lookup("kv.get")
	result, _ := fn(context.Background(), nil)
	if result != "new" {
		t.Errorf("result = %v, want new", result)
	}
}

func TestKeysSorted(t *testing.T) {
	table := NewTable()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	table.Register("tasks", "list", noop)
	table.Register("projects", "get", noop)
	table.Register("tasks", "create", noop)

	want := []string{"projects.get", "tasks.create", "tasks.list"}
	if got := table.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestErrorImplementsError(t *testing.T) {
	var err error = &Error{Message: "bad input", Code: "INVALID_INPUT", Fix: "pass a string"}
	if err.Error() != "bad input" {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := errors.New("outer")
	var de *Error
	if errors.As(err, &de) == false {
		t.Error("errors.As should match *Error")
	}
	if errors.As(wrapped, &de) {
		t.Error("errors.As should not match plain errors")
	}
}
