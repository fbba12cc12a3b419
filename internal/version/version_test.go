package version

import "testing"

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit: got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit: got %q", got)
	}
}

func TestResolveLdflags(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version = "v1.2.3"
	Commit = "0123456789abcdef"
	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != "0123456789abcdef" {
		t.Fatalf("Resolve: got %+v", info)
	}
	if info.GoVersion == "" {
		t.Fatal("Resolve: missing go version")
	}
	if got := String(); got != "v1.2.3 (0123456789ab)" {
		t.Fatalf("String: got %q", got)
	}
}
