// Package models defines the core data structures shared by the registry,
// the session state machine, and the derivation gateway.
package models

import (
	"slices"
	"strings"
)

// Document is the persisted registry: identity name mapped to the ordered
// catalog of site identifiers registered for it. It never holds a master
// secret or a derived password.
type Document map[string][]string

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for name, sites := range d {
		out[name] = slices.Clone(sites)
	}
	return out
}

// Identities returns the identity names in lexicographic order.
func (d Document) Identities() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Equal reports whether both documents hold the same identities with the
// same catalogs in the same order.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for name, sites := range d {
		otherSites, ok := other[name]
		if !ok || !slices.Equal(sites, otherSites) {
			return false
		}
	}
	return true
}

// Credential is a derived (site, password) pair. It exists only in memory
// for display and is never persisted.
type Credential struct {
	// Site is the catalog entry the password was derived for.
	Site string `json:"site"`
	// Password is the derived site password.
	Password string `json:"password"`
}

// NormalizeName trims surrounding whitespace from an identity or site
// identifier and rejects names that are empty afterwards.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidName
	}
	return trimmed, nil
}
