package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	w, err := NewRotatingWriter(path, 16)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	w.Write([]byte("0123456789\n"))
	w.Write([]byte("0123456789\n"))

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected fresh log after rotation, size=%d", info.Size())
	}
}

func TestRotatingWriter_KeepsBoundedBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	w, err := NewRotatingWriter(path, 4)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < backups+2; i++ {
		w.Write([]byte("rotate me\n"))
	}

	for i := 1; i <= backups; i++ {
		if _, err := os.Stat(backupName(path, i)); err != nil {
			t.Errorf("expected backup %d: %v", i, err)
		}
	}
	if _, err := os.Stat(backupName(path, backups+1)); !os.IsNotExist(err) {
		t.Errorf("expected no backup beyond %d, got err=%v", backups, err)
	}
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(log.New(&buf, "", 0), "[AE]", 8)

	w.Write([]byte("first line\nsec"))
	w.Write([]byte("ond line\n\npartial"))
	w.Flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{"[AE] first line", "[AE] second line", "[AE] partial"}
	if len(lines) != len(want) {
		t.Fatalf("got %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	if got := w.Tail(); got != "partial" {
		t.Errorf("Tail = %q, want %q", got, "partial")
	}
}
