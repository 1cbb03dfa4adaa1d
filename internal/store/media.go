package store

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// RegisterMedia tracks a downloaded file under its owning message id. The
// file is deleted when the message is evicted or deleted. It reports false,
// tracking nothing, when the message is no longer stored.
func (s *Store) RegisterMedia(chatID, msgID, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[chatID]
	if log == nil {
		return false
	}
	m, ok := log.byID[msgID]
	if !ok {
		return false
	}
	m.MediaPath = path
	s.media[msgID] = path
	return true
}

// MediaPath returns the tracked file for a message id.
func (s *Store) MediaPath(msgID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.media[msgID]
	return p, ok
}

// MediaCount returns how many files are tracked.
func (s *Store) MediaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.media)
}

func (s *Store) removeMediaLocked(msgID string) {
	path, ok := s.media[msgID]
	if !ok {
		return
	}
	delete(s.media, msgID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to delete media file", zap.String("path", path), zap.Error(err))
	}
}
