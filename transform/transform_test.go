package transform

import (
	"io"
	"log/slog"
	"testing"
)

func TestStripCommonPrefix(t *testing.T) {
	io_ := []Pair{
		{Target: Endpoint{Address: "/a/b/c"}},
		{Target: Endpoint{Address: "/a/b/d"}},
		{Target: Endpoint{Address: "/a/e/f"}},
	}
	got := StripCommonPrefix().Run(io_)
	want := []string{"/b/c", "/b/d", "/e/f"}
	for i, p := range got {
		if p.Target.Address != want[i] {
			t.Fatalf("index %d: got %q want %q", i, p.Target.Address, want[i])
		}
	}
}

func TestVaultTransformer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lookup := func(path string) (string, error) { return "p1", nil }

	tr := VaultTransformer(lookup, TeamMapping{}, logger)

	encoded := vaultEncoding.EncodeToString([]byte("foo/bar/quux"))
	addr := "/lustre/scratch101/projects/p1/.vault/.staged/01/23/45/67/89/ab-" + encoded

	out := tr.Run([]Pair{{Source: Endpoint{Address: addr}}})
	if len(out) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(out))
	}
	want := "/humgen/projects/p1/scratch101/foo/bar/quux"
	if out[0].Target.Address != want {
		t.Fatalf("got %q want %q", out[0].Target.Address, want)
	}
}

func TestVaultTransformerDropsNonMatching(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := VaultTransformer(func(string) (string, error) { return "", nil }, nil, logger)

	out := tr.Run([]Pair{{Source: Endpoint{Address: "/not/a/vault/path"}}})
	if len(out) != 0 {
		t.Fatalf("expected non-matching address to be dropped, got %+v", out)
	}
}

func TestComposeIOLeftToRight(t *testing.T) {
	upper := IOTransformer{Name: "a", Run: func(io []Pair) []Pair {
		for i := range io {
			io[i].Target.Address += "-a"
		}
		return io
	}}
	lower := IOTransformer{Name: "b", Run: func(io []Pair) []Pair {
		for i := range io {
			io[i].Target.Address += "-b"
		}
		return io
	}}

	composed := ComposeIO(upper, lower)
	out := composed.Run([]Pair{{Target: Endpoint{Address: "x"}}})
	if out[0].Target.Address != "x-a-b" {
		t.Fatalf("expected left-to-right composition, got %q", out[0].Target.Address)
	}
}
