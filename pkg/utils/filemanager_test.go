package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestStorageKey(t *testing.T) {
	at := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

	dated := StorageKey("Obras 2025.XLSX", true, at)
	if !regexp.MustCompile(`^2025/03/05/[0-9a-f-]{36}\.xlsx$`).MatchString(dated) {
		t.Errorf("dated key = %q", dated)
	}

	flat := StorageKey("pagos.csv", false, at)
	if strings.Contains(flat, "/") || !strings.HasSuffix(flat, ".csv") {
		t.Errorf("flat key = %q", flat)
	}

	if StorageKey("a.xlsx", false, at) == StorageKey("a.xlsx", false, at) {
		t.Error("keys must be unique per upload")
	}
}

func TestFileManager_SaveOpenDelete(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(root, true)
	fm.now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	key, err := fm.Save(ctx, "seguimiento pagos.xlsx", bytes.NewReader([]byte("payload")), 7)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(key, "2025/01/02/") {
		t.Errorf("key = %q", key)
	}
	if !FileExists(filepath.Join(root, filepath.FromSlash(key))) {
		t.Fatal("stored file missing")
	}

	rc, err := fm.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}

	if err := fm.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := fm.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing key must succeed, got %v", err)
	}
	if _, err := fm.Open(ctx, key); err == nil {
		t.Error("Open after Delete must fail")
	}
}

func TestFileManager_RejectsEscapingKeys(t *testing.T) {
	fm := NewFileManager(t.TempDir(), false)
	for _, key := range []string{"", "../etc/passwd", "2025/../../x", "a//b"} {
		if _, err := fm.Open(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}
