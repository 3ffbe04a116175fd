package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"mizan/internal/types"
)

// Keyword-based incident triage. The reporter just types (or dictates) free
// text; the engine picks a category and severity so the manager notification
// can be routed and prioritized without waiting for human review. Matching is
// a lowercase word-start scan across English, French and Arabic (Arabic
// needs no case folding).

var incidentTypeKeywords = []struct {
	kind     types.IncidentType
	keywords []string
}{
	{types.IncidentSafety, []string{
		"fire", "burn", "injur", "accident", "slip", "fell", "blood", "cut", "smoke", "gas",
		"feu", "incendie", "brûl", "blessure", "blessé", "accident", "chute", "sang", "fumée", "gaz",
		"حريق", "حرق", "إصابة", "جرح", "سقط", "دم", "دخان", "غاز",
	}},
	{types.IncidentMaintenance, []string{
		"broken", "break", "leak", "fridge", "freezer", "oven", "repair", "not working", "power",
		"panne", "fuite", "cassé", "frigo", "congélateur", "four", "réparation", "ne marche pas", "électricité",
		"عطل", "تسرب", "مكسور", "ثلاجة", "فرن", "إصلاح", "لا يعمل", "كهرباء",
	}},
	{types.IncidentHR, []string{
		"harass", "fight", "conflict", "argument", "abuse", "threat", "discrimination",
		"harcèlement", "bagarre", "conflit", "dispute", "menace", "insulte",
		"تحرش", "شجار", "خلاف", "تهديد", "إهانة",
	}},
	{types.IncidentService, []string{
		"customer", "complaint", "refund", "order", "wrong order", "wait", "delivery",
		"client", "plainte", "remboursement", "commande", "attente", "livraison",
		"زبون", "عميل", "شكوى", "طلب", "انتظار", "توصيل",
	}},
}

var criticalKeywords = []string{
	"fire", "blood", "emergency", "ambulance", "unconscious", "severe",
	"incendie", "urgence", "ambulance", "inconscient", "grave",
	"حريق", "طوارئ", "إسعاف", "خطير",
}

var highKeywords = []string{
	"injur", "urgent", "harass", "fight", "threat", "gas", "leak",
	"blessure", "blessé", "bagarre", "menace", "fuite", "gaz",
	"إصابة", "عاجل", "تحرش", "شجار", "تهديد", "تسرب", "غاز",
}

// inferIncident categorizes a free-text incident description. Descriptions
// matching no category fall back to General with the category's default
// severity.
func inferIncident(description string) (types.IncidentType, types.IncidentSeverity) {
	lower := strings.ToLower(description)

	kind := types.IncidentGeneral
	for _, entry := range incidentTypeKeywords {
		if containsAny(lower, entry.keywords) {
			kind = entry.kind
			break
		}
	}

	severity := defaultSeverity(kind)
	switch {
	case containsAny(lower, criticalKeywords):
		severity = types.SeverityCritical
	case containsAny(lower, highKeywords):
		severity = types.SeverityHigh
	}

	return kind, severity
}

func defaultSeverity(kind types.IncidentType) types.IncidentSeverity {
	switch kind {
	case types.IncidentSafety, types.IncidentHR:
		return types.SeverityHigh
	case types.IncidentMaintenance, types.IncidentService:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if containsAtWordStart(s, kw) {
			return true
		}
	}
	return false
}

// containsAtWordStart reports whether kw occurs in s at the start of a word.
// Keywords act as prefixes ("injur" matches "injured") but never match
// inside a preceding word: the Arabic stem "دم" (blood) must not fire on
// "قدم" (submitted).
func containsAtWordStart(s, kw string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		if i == 0 {
			return true
		}
		if r, _ := utf8.DecodeLastRuneInString(s[:i]); !unicode.IsLetter(r) {
			return true
		}
		start = i + 1
	}
}
