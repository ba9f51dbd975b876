package quickjs

import (
	"strings"
	"testing"
)

func TestName(t *testing.T) {
	if got := New().Name(); got != "quickjs" {
		t.Errorf("Name() = %q", got)
	}
}

func TestModuleEmbedded(t *testing.T) {
	if len(New().Module()) == 0 {
		t.Fatal("wasm module is empty")
	}
}

func TestWrapScript(t *testing.T) {
	q := New()
	wrapped := q.WrapScript(`return 1+1;`, []byte(`{"cursor":42}`))

	if !strings.HasPrefix(wrapped, `globalThis.__seed = {"cursor":42};`) {
		t.Errorf("seed not injected first: %q", wrapped[:60])
	}
	if !strings.Contains(wrapped, "__main(async () => {\nreturn 1+1;\n});") {
		t.Error("script not wrapped in async entry point")
	}
	// Bootstrap must precede the entry point so the runtime surface exists.
	if strings.Index(wrapped, "g.host = host") > strings.Index(wrapped, "__main(async") {
		t.Error("bootstrap appears after entry point")
	}
}

func TestWrapScriptEmptySeed(t *testing.T) {
	wrapped := New().WrapScript(`progress("x");`, nil)
	if !strings.HasPrefix(wrapped, "globalThis.__seed = {};") {
		t.Errorf("empty seed should default to {}: %q", wrapped[:40])
	}
}

func TestArgs(t *testing.T) {
	q := New()
	wrapped := q.WrapScript("return 0;", nil)
	args := q.Args(wrapped)

	want := []string{"qjs", "--std", "-e", wrapped}
	if len(args) != len(want) {
		t.Fatalf("args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBootstrapSpeaksFrameProtocol(t *testing.T) {
	for _, marker := range []string{`"\x00SBX:"`, `"use strict"`, "std.in.getline", "std.err.puts"} {
		if !strings.Contains(stdlib, marker) {
			t.Errorf("bootstrap missing %q", marker)
		}
	}
}
