// Package locnorm turns free-text courier locations into canonical cache keys.
package locnorm

import (
	"regexp"
	"strings"
)

// Trailing facility designators carry no geographic information and confuse
// the geocoder ("East Grinstead DO", "LOS ANGELES CA INTERNATIONAL
// DISTRIBUTION CENTER").
var facilitySuffix = regexp.MustCompile(`(?i)\s+(DO|DC|MC|DISTRIBUTION CENTER|INTERNATIONAL DISTRIBUTION CENTER)$`)

// Normalize maps a raw location string to its cache key: facility suffix
// stripped, whitespace runs collapsed, lower-cased. Returns "" for empty or
// whitespace-only input; "" is the "no location" value and is never cached.
// Strings differing only by case or whitespace normalize to the same key.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = facilitySuffix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// SearchTerm is what gets sent to the geocoder: same cleanup as Normalize
// but with the original casing kept, since some geocoders score
// capitalized place names better.
func SearchTerm(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = facilitySuffix.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
