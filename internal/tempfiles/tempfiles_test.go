package tempfiles

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestSaveAndRemove(t *testing.T) {
	m := newTestManager(t)

	path, err := m.Save(bytes.NewReader([]byte("RIFFaudio")), "")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("saved file unreadable: %v", err)
	}
	if string(data) != "RIFFaudio" {
		t.Errorf("saved content = %q", data)
	}

	if err := m.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after remove")
	}
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	m := newTestManager(t)

	path := filepath.Join(m.Dir(), "never-existed.wav")
	if err := m.Remove(path); err != nil {
		t.Errorf("removing a missing file must succeed, got %v", err)
	}

	// Double deletion is a no-op, not an error.
	saved, err := m.SaveBytes([]byte("x"), "")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := m.Remove(saved); err != nil {
		t.Fatalf("first remove failed: %v", err)
	}
	if err := m.Remove(saved); err != nil {
		t.Errorf("second remove must be a no-op, got %v", err)
	}
}

func TestRemoveEmptyPathIsNoop(t *testing.T) {
	m := newTestManager(t)
	if err := m.Remove(""); err != nil {
		t.Errorf("empty path must be a no-op, got %v", err)
	}
}

func TestSweepDeletesOnlyStaleFiles(t *testing.T) {
	m := newTestManager(t)

	stale, err := m.SaveBytes([]byte("old"), "stale-*.wav")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	fresh, err := m.SaveBytes([]byte("new"), "fresh-*.wav")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Age the stale file past the retention window
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	removed, err := m.Sweep()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file should survive the sweep: %v", err)
	}
}
