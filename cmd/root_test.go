package cmd

import (
	"io"
	"os"
	"strings"
	"testing"
)

// setArgs replaces os.Args for one Execute call. Cobra keeps parsed flag
// values on the package-level commands between Execute calls, so a
// --metadata value passed by an earlier test is reset first.
func setArgs(args ...string) func() {
	rememberCmd.Flags().Set("metadata", "")
	orig := os.Args
	os.Args = args
	return func() { os.Args = orig }
}

func captureStdout(f func()) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()
	f()
	w.Close()
	data, _ := io.ReadAll(r)
	return string(data), nil
}

// withDataDir points LOREWEAVE_DATA_DIR at a fresh temp directory for the
// duration of the test, so each test gets its own isolated store.
func withDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig := os.Getenv("LOREWEAVE_DATA_DIR")
	os.Setenv("LOREWEAVE_DATA_DIR", dir)
	os.Setenv("LOREWEAVE_EMBEDDING_BACKEND", "cpu")
	os.Setenv("LOREWEAVE_PRELOAD_EMBEDDINGS", "false")
	t.Cleanup(func() {
		os.Setenv("LOREWEAVE_DATA_DIR", orig)
		os.Unsetenv("LOREWEAVE_EMBEDDING_BACKEND")
		os.Unsetenv("LOREWEAVE_PRELOAD_EMBEDDINGS")
	})
	return dir
}

func TestExecute_Help(t *testing.T) {
	defer setArgs("loreweave", "help")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(help): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Loreweave") {
		t.Errorf("help output should mention Loreweave: %q", out)
	}
}

func TestExecute_HelpShortFlag(t *testing.T) {
	defer setArgs("loreweave", "-h")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(-h): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Error("help -h should print")
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	if Version != "1.2.3" || Commit != "abc123" || Date != "2026-01-01" {
		t.Errorf("SetVersion: got Version=%q Commit=%q Date=%q", Version, Commit, Date)
	}
	SetVersion("dev", "none", "unknown")
}

func TestExecute_Version(t *testing.T) {
	defer setArgs("loreweave", "version")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(version): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "loreweave") {
		t.Errorf("version output should contain 'loreweave': %q", out)
	}
}
