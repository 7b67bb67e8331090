// Package fallback implements the flat-file store backing temporary and
// demo tickets. Records here bypass the relational store's authorization
// rules entirely: any caller may read or write under a reserved-prefix id.
package fallback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agalaxie/shadesupport/internal/core"
)

// Store persists a mapping of owner key to temporary tickets as a single
// JSON file. Writes rewrite the whole file; a process-level mutex and an
// atomic rename keep concurrent handlers in one process from corrupting it.
type Store struct {
	mu        sync.Mutex
	path      string
	retention time.Duration // 0 keeps everything
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a store over the given file path. retention prunes tickets
// older than the window on save; zero disables pruning.
func New(path string, retention time.Duration, log zerolog.Logger) *Store {
	return &Store{
		path:      path,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// load reads the whole mapping. A missing file is an empty mapping.
func (s *Store) load() (map[string][]core.Ticket, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]core.Ticket{}, nil
		}
		return nil, fmt.Errorf("failed to read fallback store: %w", err)
	}

	tickets := map[string][]core.Ticket{}
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, fmt.Errorf("failed to parse fallback store: %w", err)
	}
	return tickets, nil
}

// save writes the whole mapping back atomically, pruning expired tickets
func (s *Store) save(tickets map[string][]core.Ticket) error {
	if s.retention > 0 {
		cutoff := s.now().Add(-s.retention)
		for owner, list := range tickets {
			kept := list[:0]
			for _, t := range list {
				if t.CreatedAt.After(cutoff) {
					kept = append(kept, t)
				}
			}
			if len(kept) == 0 {
				delete(tickets, owner)
				continue
			}
			tickets[owner] = kept
		}
	}

	data, err := json.Marshal(tickets)
	if err != nil {
		return fmt.Errorf("failed to encode fallback store: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write fallback store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace fallback store: %w", err)
	}

	return nil
}

// FindTicket searches every owner's list for the given id
func (s *Store) FindTicket(id string) (*core.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		s.log.Error().Err(err).Msg("fallback store unreadable")
		return nil, false
	}

	for _, list := range tickets {
		for i := range list {
			if list[i].ID == id {
				t := list[i]
				return &t, true
			}
		}
	}
	return nil, false
}

// SaveTicket appends (or replaces) a ticket under the given owner key
func (s *Store) SaveTicket(owner string, ticket *core.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		return err
	}

	list := tickets[owner]
	replaced := false
	for i := range list {
		if list[i].ID == ticket.ID {
			list[i] = *ticket
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *ticket)
	}
	tickets[owner] = list

	return s.save(tickets)
}

// AppendMessage adds a message to the ticket's thread and persists the whole
// mapping. Returns false if no ticket with that id exists anywhere.
func (s *Store) AppendMessage(ticketID string, msg core.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		return false, err
	}

	for owner, list := range tickets {
		for i := range list {
			if list[i].ID == ticketID {
				list[i].Messages = append(list[i].Messages, msg)
				tickets[owner] = list
				if err := s.save(tickets); err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}

	return false, nil
}
