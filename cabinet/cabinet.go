// Package cabinet extracts structured "cabinet" notifications embedded as
// free text in ordinary chat messages and keeps them in an in-memory,
// per-chat event log.
//
// A cabinet message looks like:
//
//	[redisonpay#947] Автоматическое оповещение: Выплата#2259417 в обработке
//
// i.e. a bracketed name#id prefix, a label, a colon, and the payload. Only
// a minority of observed chat traffic matches; everything else is ignored
// without error.
package cabinet

import (
	"regexp"
	"strings"
	"time"
)

// Event is one extracted cabinet notification. Events are immutable once
// appended to the log.
type Event struct {
	ChatID      int64     `json:"chat_id"`
	ChatName    string    `json:"chat_name"`
	CabinetName string    `json:"cabinet_name"`
	CabinetID   string    `json:"cabinet_id"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	// MessageID is the originating chat message, 0 when unknown.
	MessageID int64 `json:"message_id,omitempty"`
	// Fallback marks payloads recovered by the lossy everything-after-the-
	// first-colon heuristic rather than the structured pattern. Best
	// effort only; the payload may include label fragments.
	Fallback bool `json:"fallback,omitempty"`
}

// The label is any run of non-colon characters, so payloads containing
// colons survive; (?s) lets the payload span lines.
var cabinetPattern = regexp.MustCompile(`^\[(\w+)#(\d+)\]\s+([^:]+):(?s:(.*))`)

// Parse recognizes the cabinet pattern in text. ok is false when the text
// is not a cabinet message at all. When the structured match yields an
// empty payload, Parse falls back to everything after the first colon in
// the whole text and marks the result as such.
func Parse(text string) (ev Event, ok bool) {
	m := cabinetPattern.FindStringSubmatch(text)
	if m == nil {
		return Event{}, false
	}
	ev = Event{
		CabinetName: m[1],
		CabinetID:   m[2],
		Message:     strings.TrimSpace(m[4]),
	}
	if ev.Message == "" {
		if i := strings.Index(text, ":"); i > 0 {
			ev.Message = strings.TrimSpace(text[i+1:])
			ev.Fallback = true
		}
	}
	return ev, true
}
