package types

import "strings"

// NormalizePhone strips every non-digit character from a raw phone string.
// The result is the authoritative phoneKey used for session identity.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneVariants returns lookup candidates for matching a phoneKey to a known
// user whose stored phone may differ by country-code prefix or a leading
// zero. The first element is always the phoneKey itself; matching against
// the variants is best effort and never authoritative.
func PhoneVariants(phoneKey string) []string {
	variants := []string{phoneKey}
	seen := map[string]bool{phoneKey: true}

	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	// A local number stored with a leading zero instead of a country code:
	// "212600000001" may be stored as "0600000001".
	if len(phoneKey) > 9 {
		add("0" + phoneKey[len(phoneKey)-9:])
	}

	// A number stored without its leading zero: "0600000001" -> "600000001".
	if strings.HasPrefix(phoneKey, "0") {
		add(phoneKey[1:])
	}

	// Suffix form without any prefix.
	if len(phoneKey) > 9 {
		add(phoneKey[len(phoneKey)-9:])
	}

	return variants
}
