// Package lock guards a data directory against a second daemon. The lock is
// an flock(2) on <dir>/wppbridged.lock that also records the holder's pid and
// listen address.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside the data directory.
const FileName = "wppbridged.lock"

// HeldError is returned when another process holds the data directory.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	if e.Holder.Listen != "" {
		return fmt.Sprintf("data directory in use by pid %d listening on %s (%s)", e.Holder.PID, e.Holder.Listen, e.Path)
	}
	return fmt.Sprintf("data directory in use by pid %d (%s)", e.Holder.PID, e.Path)
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Listen  string
	Started time.Time
}

// Lock is an acquired data directory lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file path for dir.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Acquire takes the exclusive lock on dir and records listen as the address
// the holder serves on. It fails with *HeldError when another process has it.
func Acquire(dir, listen string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := Path(dir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		h, _ := ReadHolder(dir)
		return nil, &HeldError{Holder: h, Path: path}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nlisten=%s\ntime=%s\n", os.Getpid(), listen, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe on a nil or already
// released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadHolder parses the lock file in dir. It returns os.ErrNotExist when no
// daemon has written one.
func ReadHolder(dir string) (Holder, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return Holder{}, err
	}
	var h Holder
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "listen":
			h.Listen = value
		case "time":
			h.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	if h.PID == 0 {
		return Holder{}, errors.New("lock file has no pid")
	}
	return h, nil
}
