// Package links manages the named chat links: small {id, name} records
// addressed by their 1-based position in the persisted list. The JSON file
// is the sole source of truth; every operation reloads it first, so
// ordinals always reflect the current file and renumber after deletions.
// Callers must not cache ordinals across mutations.
package links

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/vkoshelev/linkbot/internal/fsstore"
)

type Link struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

func (s *Store) loadLocked() ([]Link, error) {
	var out []Link
	if _, err := fsstore.ReadJSON(s.path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the links in file order. The slice index + 1 is the
// ordinal shown to users.
func (s *Store) List() ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) Add(chatID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("links: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked()
	if err != nil {
		return err
	}
	cur = append(cur, Link{ID: chatID, Name: name})
	return fsstore.WriteJSONAtomic(s.path, cur)
}

// DeleteByOrdinal removes the link at 1-based position n. The bool reports
// whether such a link existed; subsequent links shift down one ordinal.
func (s *Store) DeleteByOrdinal(n int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	idx := n - 1
	if idx < 0 || idx >= len(cur) {
		return false, nil
	}
	cur = append(cur[:idx], cur[idx+1:]...)
	return true, fsstore.WriteJSONAtomic(s.path, cur)
}

// ByOrdinal resolves the link at 1-based position n.
func (s *Store) ByOrdinal(n int) (Link, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked()
	if err != nil {
		return Link{}, false, err
	}
	idx := n - 1
	if idx < 0 || idx >= len(cur) {
		return Link{}, false, nil
	}
	return cur[idx], true, nil
}

// NameFor returns the display name of the first link bound to chatID, or
// the chat id rendered as text when the chat is not linked.
func (s *Store) NameFor(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked()
	if err == nil {
		for _, l := range cur {
			if l.ID == chatID {
				return l.Name
			}
		}
	}
	return strconv.FormatInt(chatID, 10)
}
