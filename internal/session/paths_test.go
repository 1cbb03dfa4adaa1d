package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestPathsLayout(t *testing.T) {
	p := Paths{Root: "/data"}
	tests := []struct {
		got, want string
	}{
		{p.Dir("main"), "/data/sessions/main"},
		{p.CredentialsPath("main"), "/data/sessions/main/session.db"},
		{p.ConfigPath("main"), "/data/sessions/main/config.json"},
		{p.SnapshotPath("main"), "/data/sessions/main/store.json"},
		{p.MediaDir("main"), "/data/media/main"},
		{p.LedgerPath(), "/data/bridge.db"},
	}
	for _, tt := range tests {
		if filepath.ToSlash(tt.got) != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
	if !strings.HasSuffix(p.LogPath(), filepath.Join("logs", "wppbridged.log")) {
		t.Errorf("LogPath = %q", p.LogPath())
	}
}

func TestEnsureDirAndExisting(t *testing.T) {
	p := Paths{Root: t.TempDir()}

	ids, err := p.Existing()
	if err != nil || len(ids) != 0 {
		t.Fatalf("Existing on empty root = %v, %v", ids, err)
	}

	for _, id := range []string{"beta", "alpha"} {
		if err := p.EnsureDir(id); err != nil {
			t.Fatal(err)
		}
	}
	// Entries that are not valid ids are ignored.
	if err := os.MkdirAll(filepath.Join(p.SessionsDir(), "bad name"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p.SessionsDir(), "stray.txt"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(p.MediaDir("alpha"))
	if err != nil || !info.IsDir() {
		t.Fatalf("media dir not created: %v", err)
	}

	ids, err = p.Existing()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"alpha", "beta"}) {
		t.Errorf("Existing = %v", ids)
	}
}
