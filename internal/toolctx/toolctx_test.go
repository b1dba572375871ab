package toolctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// writeFakeTool drops an executable shell script named name into dir,
// printing body to stdout and exiting 0.
func writeFakeTool(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nprintf '"+body+"'\n"), 0755); err != nil {
		t.Fatal(err)
	}
}

func withFakeToolchain(t *testing.T, bodies map[string]string) func() {
	t.Helper()
	dir := t.TempDir()
	for name, body := range bodies {
		writeFakeTool(t, dir, name, body)
	}
	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
	return func() { os.Setenv("PATH", oldPath) }
}

func TestHashToolchainVersionIsDeterministic(t *testing.T) {
	restore := withFakeToolchain(t, map[string]string{
		"fake-harec": "harec 1.0",
		"fake-qbe":   "qbe 1.1",
		"fake-as":    "as 1.2",
		"fake-ld":    "ld 1.3",
	})
	defer restore()

	newCtx := func() *Context {
		return &Context{Tools: Tools{
			Frontend: "fake-harec",
			Backend:  "fake-qbe",
			As:       "fake-as",
			Ld:       "fake-ld",
		}}
	}

	c1 := newCtx()
	if err := c1.HashToolchainVersion(context.Background()); err != nil {
		t.Fatal(err)
	}
	c2 := newCtx()
	if err := c2.HashToolchainVersion(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c1.ToolchainVersionDigest == "" {
		t.Fatal("expected a non-empty digest")
	}
	if c1.ToolchainVersionDigest != c2.ToolchainVersionDigest {
		t.Errorf("digest not deterministic: %q vs %q", c1.ToolchainVersionDigest, c2.ToolchainVersionDigest)
	}
}

func TestHashToolchainVersionChangesWithToolOutput(t *testing.T) {
	restore := withFakeToolchain(t, map[string]string{
		"fake-harec-a": "harec 1.0",
		"fake-harec-b": "harec 2.0",
		"fake-qbe":     "qbe 1.1",
		"fake-as":      "as 1.2",
		"fake-ld":      "ld 1.3",
	})
	defer restore()

	c1 := &Context{Tools: Tools{Frontend: "fake-harec-a", Backend: "fake-qbe", As: "fake-as", Ld: "fake-ld"}}
	if err := c1.HashToolchainVersion(context.Background()); err != nil {
		t.Fatal(err)
	}
	c2 := &Context{Tools: Tools{Frontend: "fake-harec-b", Backend: "fake-qbe", As: "fake-as", Ld: "fake-ld"}}
	if err := c2.HashToolchainVersion(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c1.ToolchainVersionDigest == c2.ToolchainVersionDigest {
		t.Error("expected different tool output to produce different digests")
	}
}

func TestHashToolchainVersionMissingToolErrors(t *testing.T) {
	c := &Context{Tools: Tools{
		Frontend: "hbuild-definitely-not-a-real-binary",
		Backend:  "qbe",
		As:       "as",
		Ld:       "ld",
	}}
	if err := c.HashToolchainVersion(context.Background()); err == nil {
		t.Fatal("expected an error for a missing tool binary")
	}
}

func TestStageExtAndString(t *testing.T) {
	cases := []struct {
		s        Stage
		wantStr  string
		wantExt  string
	}{
		{SSA, "SSA", "ssa"},
		{S, "S", "s"},
		{O, "O", "o"},
		{BIN, "BIN", "bin"},
		{TD, "TD", "ssa.td"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.wantStr {
			t.Errorf("Stage(%d).String() = %q, want %q", c.s, got, c.wantStr)
		}
		if got := c.s.Ext(); got != c.wantExt {
			t.Errorf("Stage(%d).Ext() = %q, want %q", c.s, got, c.wantExt)
		}
	}
}
