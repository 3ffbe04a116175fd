package types

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+212 600-000001", "212600000001"},
		{"212600000001", "212600000001"},
		{"(06) 00 00 00 01", "0600000001"},
		{"+33 6 12 34 56 78", "33612345678"},
		{"whatsapp:+212600000001", "212600000001"},
		{"", ""},
		{"no digits here", ""},
	}

	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPhoneVariants(t *testing.T) {
	variants := PhoneVariants("212600000001")

	if variants[0] != "212600000001" {
		t.Errorf("first variant = %q, want the phone key itself", variants[0])
	}

	want := map[string]bool{
		"212600000001": true, // as-is
		"0600000001":   true, // local form with leading zero
		"600000001":    true, // bare suffix
	}
	for _, v := range variants {
		if !want[v] {
			t.Errorf("unexpected variant %q", v)
		}
		delete(want, v)
	}
	for missing := range want {
		t.Errorf("missing variant %q", missing)
	}
}

func TestPhoneVariantsLeadingZero(t *testing.T) {
	variants := PhoneVariants("0600000001")

	found := false
	for _, v := range variants {
		if v == "600000001" {
			found = true
		}
	}
	if !found {
		t.Errorf("variants %v should include the form without the leading zero", variants)
	}
}

func TestPhoneVariantsShortKeyHasNoDuplicates(t *testing.T) {
	variants := PhoneVariants("12345")

	seen := map[string]bool{}
	for _, v := range variants {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
	}
}
