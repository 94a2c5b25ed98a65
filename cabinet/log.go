package cabinet

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Log is the process-wide append log of extracted events, grouped by chat.
// Events are kept for the lifetime of the process; there is no eviction.
type Log struct {
	mu     sync.Mutex
	byChat map[int64][]Event
}

func NewLog() *Log {
	return &Log{byChat: make(map[int64][]Event)}
}

func (l *Log) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byChat[ev.ChatID] = append(l.byChat[ev.ChatID], ev)
}

// Filter narrows Log queries. The zero value matches everything.
type Filter struct {
	// ChatID restricts to one chat when non-zero.
	ChatID int64
	// CabinetName matches case-insensitively when non-empty.
	CabinetName string
	// Since drops events strictly older than it when non-zero.
	Since time.Time
}

// Events returns matching events newest-first.
func (l *Log) Events(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for chatID, events := range l.byChat {
		if f.ChatID != 0 && chatID != f.ChatID {
			continue
		}
		for _, ev := range events {
			if f.CabinetName != "" && !strings.EqualFold(ev.CabinetName, f.CabinetName) {
				continue
			}
			if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
				continue
			}
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, events := range l.byChat {
		n += len(events)
	}
	return n
}
