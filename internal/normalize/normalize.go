// Package normalize provides title and company-name normalization used for
// catalog matching. All comparison happens on normalized forms: lower-cased,
// diacritic-folded, punctuation-stripped.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/questlogapp/questlog-server/internal/domain"
)

var (
	// Matches any run of characters that is neither letter nor digit.
	nonAlphanumericRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	// Matches multiple consecutive spaces.
	multipleSpaceRe = regexp.MustCompile(` +`)
)

// foldDiacritics decomposes to NFD, drops combining marks, and recomposes.
// The kana voicing marks U+3099/U+309A are kept: they distinguish titles
// (ゼ vs セ), unlike Latin accents.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isFoldableMark)), norm.NFC)

func isFoldableMark(r rune) bool {
	if r == '\u3099' || r == '\u309a' {
		return false
	}
	return unicode.Is(unicode.Mn, r)
}

// Title converts a raw game title to its canonical comparison form.
//
// Normalization rules:
//  1. Trim whitespace and lowercase
//  2. Fold diacritics (Pokémon -> pokemon)
//  3. Replace punctuation runs with a single space (Half-Life 2 -> half life 2)
//  4. Collapse whitespace
//
// Examples:
//
//	"Half-Life 2"        → "half life 2"
//	"DOOM (1993)"        → "doom 1993"
//	"Baldur's Gate III"  → "baldur s gate iii"
func Title(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))

	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}

	s = nonAlphanumericRe.ReplaceAllString(s, " ")
	s = multipleSpaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// Tokens returns the normalized title split into tokens. Candidate
// generation requires at least one shared token between query and entry.
func Tokens(input string) []string {
	s := Title(input)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// Storefront title decoration that carries no identity signal. Quirks live
// in data keyed by storefront, not in per-storefront code paths.
var storeFluff = map[domain.Storefront][]string{
	domain.StorefrontSteam: {"demo", "playtest", "soundtrack", "dedicated server"},
	domain.StorefrontGOG:   {"goty", "game of the year", "enhanced edition", "definitive edition"},
	domain.StorefrontEGS:   {"standard edition", "deluxe edition"},
}

// StoreTitle normalizes a storefront-reported title, additionally stripping
// the storefront's known decoration suffixes.
func StoreTitle(storefront domain.Storefront, input string) string {
	s := Title(input)
	for _, fluff := range storeFluff[storefront] {
		s = strings.TrimSuffix(s, " "+fluff)
	}
	return strings.TrimSpace(s)
}
