package tempfiles

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Manager owns the lifecycle of on-disk temp audio: uploaded reference files
// and preset audio materialized from blob storage. Deletion is idempotent and
// a periodic sweep removes anything the normal paths leaked.
type Manager struct {
	dir       string
	retention time.Duration
	interval  time.Duration
}

func NewManager(dir string, retention, interval time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", dir, err)
	}

	return &Manager{dir: dir, retention: retention, interval: interval}, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

// Save copies an uploaded reference-audio stream into a temp file and returns
// its path. The caller (ultimately the worker, via the job's delete-after-use
// flag) owns deletion.
func (m *Manager) Save(r io.Reader, pattern string) (string, error) {
	if pattern == "" {
		pattern = "ref-*.wav"
	}

	f, err := os.CreateTemp(m.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		m.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		m.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return f.Name(), nil
}

// SaveBytes materializes preset audio bytes (downloaded from blob storage)
// into a temp file marked for delete-after-use by the worker.
func (m *Manager) SaveBytes(data []byte, pattern string) (string, error) {
	if pattern == "" {
		pattern = "preset-*.wav"
	}

	f, err := os.CreateTemp(m.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		m.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		m.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return path, nil
}

// Remove deletes a temp file. A file that is already gone counts as success;
// real failures are logged and returned but callers on cleanup paths treat
// them as non-fatal.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}

	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}

	log.Printf("[TempFiles] Failed to remove %s: %v", path, err)
	return err
}

// Run sweeps the temp dir on the configured interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("[TempFiles] Sweep started (dir=%s, retention=%v, interval=%v)", m.dir, m.retention, m.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[TempFiles] Sweep stopped")
			return
		case <-ticker.C:
			removed, err := m.Sweep()
			if err != nil {
				log.Printf("[TempFiles] Sweep error: %v", err)
			} else if removed > 0 {
				log.Printf("[TempFiles] Sweep removed %d stale file(s)", removed)
			}
		}
	}
}

// Sweep deletes temp files older than the retention window. Only filesystem
// metadata is consulted, never file contents.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-m.retention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // raced with a deletion
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := m.Remove(filepath.Join(m.dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
