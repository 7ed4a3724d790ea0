package addressbook

import (
	"testing"

	"github.com/wren-mail/wren/internal/config"
)

func testBook() *Book {
	return New(config.Config{
		AddressBook: []string{
			"Ada Lovelace <ada@example.org>",
			"bob@example.net",
			"ada@example.org", // duplicate, dropped
		},
		DefaultFrom: "me@example.com",
		Identities: map[string]config.Identity{
			"me@example.com":   {From: "Me <me@example.com>"},
			"alt@example.com":  {},
			"zeta@example.com": {},
		},
	})
}

func TestNewOrderAndDedup(t *testing.T) {
	got := testBook().All()
	want := []string{
		"ada@example.org",
		"bob@example.net",
		"me@example.com",
		"alt@example.com",
		"zeta@example.com",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(got), got)
	}
	for i, addr := range want {
		if got[i].Address != addr {
			t.Errorf("entry %d: expected %s, got %s", i, addr, got[i].Address)
		}
	}
}

func TestCompleteMatchesNameAndAddress(t *testing.T) {
	book := testBook()

	if got := book.Complete("lovelace"); len(got) != 1 || got[0].Address != "ada@example.org" {
		t.Fatalf("name match failed: %+v", got)
	}
	if got := book.Complete("EXAMPLE.NET"); len(got) != 1 || got[0].Address != "bob@example.net" {
		t.Fatalf("address match failed: %+v", got)
	}
	if got := book.Complete(""); len(got) != len(book.All()) {
		t.Fatalf("empty partial should match all")
	}
	if got := book.Complete("nobody"); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestEntryString(t *testing.T) {
	plain := Entry{Address: "x@example.com"}
	if plain.String() != "x@example.com" {
		t.Fatalf("unexpected %q", plain.String())
	}
	named := Entry{Name: "Ada Lovelace", Address: "ada@example.org"}
	if named.String() != `"Ada Lovelace" <ada@example.org>` {
		t.Fatalf("unexpected %q", named.String())
	}
}
