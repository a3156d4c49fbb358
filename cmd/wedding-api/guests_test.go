package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/pmwedding/invitation/internal/guests"
)

func TestWriteGuestTable(t *testing.T) {
	var out bytes.Buffer
	listed := []guests.Guest{
		{ID: 7, Name: "Sophal", LinkToken: "abc123"},
		{ID: 8, Name: "សុផល និង ម៉ាលី", LinkToken: "def456"},
	}

	if err := writeGuestTable(&out, listed, "https://wedding.example"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "https://wedding.example/invite/abc123") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
	if !strings.Contains(lines[2], "សុផល និង ម៉ាលី") {
		t.Fatalf("expected non-ASCII name to be printed: %q", lines[2])
	}
}

func TestGuestsCommandRequiresName(t *testing.T) {
	command := newGuestsCommand()
	add, _, err := command.Find([]string{"add"})
	if err != nil {
		t.Fatalf("add command missing: %v", err)
	}
	flag := add.Flags().Lookup("name")
	if flag == nil {
		t.Fatalf("expected --name flag")
	}
	if _, required := flag.Annotations[cobra.BashCompOneRequiredFlag]; !required {
		t.Fatalf("expected --name to be required")
	}
}
