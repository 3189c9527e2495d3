package cmd

import (
	"strings"
	"testing"
)

func TestExecute_CharactersEmpty(t *testing.T) {
	withDataDir(t)
	defer setArgs("loreweave", "characters")()

	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(characters): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No characters") {
		t.Errorf("expected empty-listing message, got %q", out)
	}
}

func TestExecute_CharactersAfterRemember(t *testing.T) {
	withDataDir(t)

	func() {
		defer setArgs("loreweave", "remember", "elenora", "hello there")()
		if err := Execute(); err != nil {
			t.Fatalf("Execute(remember): %v", err)
		}
	}()

	defer setArgs("loreweave", "characters")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(characters): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "elenora") {
		t.Errorf("expected elenora in listing, got %q", out)
	}
}

func TestExecute_ForgetMissing(t *testing.T) {
	withDataDir(t)
	defer setArgs("loreweave", "forget", "elenora", "missing-id")()

	if err := Execute(); err == nil {
		t.Fatal("expected an error forgetting a nonexistent memory")
	}
}

func TestExecute_ClearEmpty(t *testing.T) {
	withDataDir(t)
	defer setArgs("loreweave", "clear", "elenora")()

	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(clear): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Cleared elenora") {
		t.Errorf("expected clear confirmation, got %q", out)
	}
}

func TestExecute_EmbedNowEmpty(t *testing.T) {
	withDataDir(t)
	defer setArgs("loreweave", "embed-now", "elenora")()

	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(embed-now): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Embedded 0 memories") {
		t.Errorf("expected zero-count message, got %q", out)
	}
}
