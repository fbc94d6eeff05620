package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wpphook", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestDBPaths(t *testing.T) {
	if got := SessionDBPath("test"); !strings.HasSuffix(got, filepath.Join("test", "session.db")) {
		t.Errorf("SessionDBPath(test) = %q", got)
	}
	if got := AppDBPath("test"); !strings.HasSuffix(got, filepath.Join("test", "wpphook.db")) {
		t.Errorf("AppDBPath(test) = %q", got)
	}
}

func TestLogPath(t *testing.T) {
	got := LogPath("test")
	if !strings.HasSuffix(got, filepath.Join("test", "logs", "wpphookd.log")) {
		t.Errorf("LogPath(test) = %q", got)
	}
}
