package domain

import "strings"

// Storefront identifies an external digital distribution platform that
// reports a user's owned titles. The set is closed: storefront-specific
// quirks live in data tables keyed by this value, not in type hierarchies.
type Storefront string

// Supported storefronts.
const (
	StorefrontSteam Storefront = "steam"
	StorefrontGOG   Storefront = "gog"
	StorefrontEGS   Storefront = "egs"
)

// Valid reports whether the storefront is one of the supported variants.
func (s Storefront) Valid() bool {
	switch s {
	case StorefrontSteam, StorefrontGOG, StorefrontEGS:
		return true
	}
	return false
}

// ParseStorefront normalizes a storefront name reported by a client.
func ParseStorefront(name string) (Storefront, bool) {
	s := Storefront(strings.ToLower(strings.TrimSpace(name)))
	return s, s.Valid()
}
