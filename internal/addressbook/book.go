// Package addressbook provides compose-time recipient autocomplete
// over the configured address book and identities.
package addressbook

import (
	"sort"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/wren-mail/wren/internal/config"
)

// Entry is one known correspondent.
type Entry struct {
	Name    string
	Address string
}

// String formats the entry as an RFC 5322 address.
func (e Entry) String() string {
	if e.Name == "" {
		return e.Address
	}
	addr := mail.Address{Name: e.Name, Address: e.Address}
	return addr.String()
}

// Book holds entries in configured order.
type Book struct {
	entries []Entry
}

// New builds a Book from the config's address_book list followed by
// its identities, de-duplicated by address, order preserved.
func New(cfg config.Config) *Book {
	b := &Book{}
	seen := map[string]bool{}

	add := func(name, address string) {
		lower := strings.ToLower(address)
		if address == "" || seen[lower] {
			return
		}
		seen[lower] = true
		b.entries = append(b.entries, Entry{Name: name, Address: address})
	}

	for _, raw := range cfg.AddressBook {
		if addr, err := mail.ParseAddress(raw); err == nil {
			add(addr.Name, addr.Address)
		} else {
			add("", strings.TrimSpace(raw))
		}
	}
	for _, addr := range identityOrder(cfg) {
		id := cfg.Identities[addr]
		name := ""
		if parsed, err := mail.ParseAddress(id.From); err == nil {
			name = parsed.Name
		}
		add(name, addr)
	}
	return b
}

// identityOrder keeps default_from first so completion favors it; the
// rest follow in lexical order since YAML maps carry no order.
func identityOrder(cfg config.Config) []string {
	var order []string
	if _, ok := cfg.Identities[cfg.DefaultFrom]; ok {
		order = append(order, cfg.DefaultFrom)
	}
	var rest []string
	for addr := range cfg.Identities {
		if addr != cfg.DefaultFrom {
			rest = append(rest, addr)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// All returns every entry in order.
func (b *Book) All() []Entry {
	return b.entries
}

// Complete returns the entries whose display name or address contains
// the partial string, case-insensitively, in configured order. An empty
// partial matches everything.
func (b *Book) Complete(partial string) []Entry {
	if partial == "" {
		return b.All()
	}
	needle := strings.ToLower(partial)
	var matches []Entry
	for _, entry := range b.entries {
		if strings.Contains(strings.ToLower(entry.Name), needle) ||
			strings.Contains(strings.ToLower(entry.Address), needle) {
			matches = append(matches, entry)
		}
	}
	return matches
}
