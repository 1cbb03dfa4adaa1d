package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrCorruptSnapshot is returned by Restore when the snapshot file was
// unreadable JSON. The file has already been deleted when this is returned.
var ErrCorruptSnapshot = errors.New("corrupt store snapshot")

const snapshotVersion = 1

type snapshot struct {
	Version  int                   `json:"version"`
	SavedAt  int64                 `json:"savedAt"`
	Chats    []Chat                `json:"chats"`
	Contacts []Contact             `json:"contacts"`
	Messages map[string][]*Message `json:"messages"`
	Groups   []Group               `json:"groups"`
	Pictures map[string]string     `json:"profilePictures"`
	Media    map[string]string     `json:"media"`
}

// Save writes the store to path atomically (write temp file, then rename).
// At most the retention cap of messages per chat is written.
func (s *Store) Save(path string) error {
	data, err := s.marshal()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (s *Store) marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Version:  snapshotVersion,
		SavedAt:  time.Now().UnixMilli(),
		Chats:    make([]Chat, 0, len(s.chats)),
		Contacts: make([]Contact, 0, len(s.contacts)),
		Messages: make(map[string][]*Message, len(s.logs)),
		Groups:   make([]Group, 0, len(s.groups)),
		Pictures: s.pictures,
		Media:    s.media,
	}
	for _, c := range s.chats {
		snap.Chats = append(snap.Chats, *c)
	}
	for _, c := range s.contacts {
		snap.Contacts = append(snap.Contacts, *c)
	}
	for _, g := range s.groups {
		snap.Groups = append(snap.Groups, *g)
	}
	for chatID, log := range s.logs {
		tail := log.msgs
		if len(tail) > s.retention {
			tail = tail[len(tail)-s.retention:]
		}
		snap.Messages[chatID] = tail
	}
	return json.Marshal(snap)
}

// Restore replaces the store contents with the snapshot at path and rebuilds
// the overview. A missing file leaves the store empty and returns nil. A file
// that is empty or not a JSON object is deleted and ErrCorruptSnapshot is
// returned; the store stays empty.
func (s *Store) Restore(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	var snap snapshot
	if len(trimmed) == 0 || trimmed[0] != '{' {
		s.discard(path)
		return ErrCorruptSnapshot
	}
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		s.discard(path)
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	for i := range snap.Chats {
		c := snap.Chats[i]
		s.chats[c.ID] = &c
	}
	for i := range snap.Contacts {
		c := snap.Contacts[i]
		s.contacts[c.ID] = &c
	}
	for i := range snap.Groups {
		g := snap.Groups[i]
		s.groups[g.ID] = &g
	}
	for k, v := range snap.Pictures {
		s.pictures[k] = v
	}
	for k, v := range snap.Media {
		s.media[k] = v
	}
	for chatID, msgs := range snap.Messages {
		for _, m := range msgs {
			if m == nil {
				continue
			}
			m.ChatID = chatID
			s.insertLocked(m)
		}
		s.enforceRetentionLocked(chatID)
	}
	s.rebuildOverviewLocked()
	return nil
}

func (s *Store) discard(path string) {
	s.logger.Warn("discarding corrupt store snapshot", zap.String("path", path))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to delete corrupt snapshot", zap.String("path", path), zap.Error(err))
	}
}
