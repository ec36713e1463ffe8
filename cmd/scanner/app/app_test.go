package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/storage"
)

func TestHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := storage.NewSqliteStore(filepath.Join(dir, storageFile))
	id, err := store.CreateSession(ctx, "sim", "bench", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	now := time.Now()
	err = store.StoreActivity(ctx, id,
		storage.Activity{Time: now, Frequency: 146_520_000, Mode: demod.FM, Strength: -30, Detected: true, Label: "simplex"},
		storage.Activity{Time: now.Add(time.Second), Frequency: 146_520_000, Mode: demod.FM, Strength: -80},
	)
	if err != nil {
		t.Fatalf("StoreActivity: %v", err)
	}
	if err = store.EndSession(ctx, id, now.Add(time.Minute)); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	config := &Config{Storage: StorageConfig{DataDirectory: dir}}

	var buf bytes.Buffer
	if err = History(ctx, config, 0, 10, &buf); err != nil {
		t.Fatalf("History: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "sim/bench") || !strings.Contains(out, "1m0s") {
		t.Errorf("Unexpected session list:\n%s", out)
	}

	buf.Reset()
	if err = History(ctx, config, id, 10, &buf); err != nil {
		t.Fatalf("History: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"146.52 MHz", "-30.0 dB", "detected", "lost", "simplex"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
}

func TestCreateStorage_MissingDirectory(t *testing.T) {
	config := &StorageConfig{DataDirectory: filepath.Join(t.TempDir(), "missing")}
	if _, err := createStorage(config); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected a missing directory error, got %v", err)
	}
}
