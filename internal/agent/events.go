package agent

import (
	"strings"
	"time"
)

// EventKind discriminates the inbound message payloads the engine handles.
type EventKind string

const (
	EventText     EventKind = "text"
	EventButton   EventKind = "button"
	EventFlow     EventKind = "flow"
	EventLocation EventKind = "location"
	EventImage    EventKind = "image"
	EventAudio    EventKind = "audio"
)

// Message is one inbound user message, normalized from the provider webhook.
// Only the fields matching Kind are populated.
type Message struct {
	// WAMID is the provider message id, the idempotency key for processing.
	WAMID string
	// From is the sender phone as the provider reports it (digits, no plus).
	From      string
	Timestamp time.Time
	Kind      EventKind

	// Text carries the body for text messages and the reply title for
	// button replies.
	Text string
	// ButtonID is the interactive reply id for button replies.
	ButtonID string
	// FlowResponse is the raw response_json of a completed flow.
	FlowResponse string

	Latitude  float64
	Longitude float64

	// MediaID / MimeType / Caption describe image and audio payloads.
	MediaID  string
	MimeType string
	Caption  string
}

// intent is the command recognized from free text in the idle state.
type intent int

const (
	intentNone intent = iota
	intentClockIn
	intentClockOut
	intentChecklist
	intentIncident
)

var intentKeywords = []struct {
	in       intent
	keywords []string
}{
	// Clock-out first: its phrases ("clock out", "pointage sortie") contain
	// clock-in substrings.
	{intentClockOut, []string{
		"clock out", "clockout", "check out", "checkout",
		"pointage sortie", "sortie", "départ", "fin de service",
		"خروج", "انصراف",
	}},
	{intentClockIn, []string{
		"clock in", "clockin", "check in", "checkin",
		"pointage", "pointer", "arrivée", "arrivee",
		"دخول", "حضور",
	}},
	{intentChecklist, []string{
		"checklist", "tasks", "task list",
		"tâches", "taches", "liste",
		"مهام", "قائمة",
	}},
	{intentIncident, []string{
		"report", "incident", "issue", "problem",
		"signaler", "problème", "probleme", "panne",
		"بلاغ", "مشكلة", "حادثة", "عطل",
	}},
}

// parseIntent recognizes a command in free text, across the supported
// languages. Returns intentNone when nothing matches.
func parseIntent(body string) intent {
	lower := strings.ToLower(strings.TrimSpace(body))
	if lower == "" {
		return intentNone
	}
	for _, entry := range intentKeywords {
		if containsAny(lower, entry.keywords) {
			return entry.in
		}
	}
	return intentNone
}
