package session

import (
	"os"
	"path/filepath"
)

// Paths lays out the daemon's data directory.
//
//	<root>/bridge.db                     delivery ledger
//	<root>/logs/wppbridged.log
//	<root>/sessions/<id>/session.db      protocol credentials
//	<root>/sessions/<id>/config.json     session settings
//	<root>/sessions/<id>/store.json      conversation store snapshot
//	<root>/media/<id>/<chat>/<file>      auto-saved media
type Paths struct {
	Root string
}

// SessionsDir returns the directory holding one subdirectory per session.
func (p Paths) SessionsDir() string {
	return filepath.Join(p.Root, "sessions")
}

// Dir returns the session-specific directory.
func (p Paths) Dir(id string) string {
	return filepath.Join(p.SessionsDir(), id)
}

// CredentialsPath returns the whatsmeow session.db path.
func (p Paths) CredentialsPath(id string) string {
	return filepath.Join(p.Dir(id), "session.db")
}

// ConfigPath returns the session settings file.
func (p Paths) ConfigPath(id string) string {
	return filepath.Join(p.Dir(id), "config.json")
}

// SnapshotPath returns the conversation store snapshot file.
func (p Paths) SnapshotPath(id string) string {
	return filepath.Join(p.Dir(id), "store.json")
}

// MediaDir returns the root of a session's media tree.
func (p Paths) MediaDir(id string) string {
	return filepath.Join(p.Root, "media", id)
}

// LedgerPath returns the delivery ledger database.
func (p Paths) LedgerPath() string {
	return filepath.Join(p.Root, "bridge.db")
}

// LogPath returns the daemon log file path.
func (p Paths) LogPath() string {
	return filepath.Join(p.Root, "logs", "wppbridged.log")
}

// ConfigFile returns the default daemon config file path.
func (p Paths) ConfigFile() string {
	return filepath.Join(p.Root, "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func (p Paths) EnsureDir(id string) error {
	for _, d := range []string{p.Dir(id), p.MediaDir(id)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Existing lists session ids that have a directory on disk.
func (p Paths) Existing() ([]string, error) {
	entries, err := os.ReadDir(p.SessionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && ValidateID(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
