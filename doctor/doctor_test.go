package doctor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/config"
)

func settingsIn(dir string) config.Settings {
	s := config.Default()
	s.Session.Dir = dir
	return s
}

func TestCheckOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "talks")

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	leftover := filepath.Join(dir, ".conversation-deadbeef-seg000003.wav")
	if err := os.WriteFile(leftover, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(leftover, old, old); err != nil {
		t.Fatal(err)
	}

	if !checkOutputDir(settingsIn(dir)) {
		t.Fatal("writable directory reported as failing")
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("stale segment file not removed")
	}
	if _, err := os.Stat(filepath.Join(dir, ".scribe-doctor")); !os.IsNotExist(err) {
		t.Error("scratch file left behind")
	}
}

func TestCheckOutputDirUnusable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if checkOutputDir(settingsIn(filepath.Join(file, "out"))) {
		t.Error("directory below a regular file reported as usable")
	}
}
