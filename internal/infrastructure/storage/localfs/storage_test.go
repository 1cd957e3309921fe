package localfs

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

func TestSaveThenOpen(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "scan-1_receipt.png", strings.NewReader("image-bytes")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := store.Open(ctx, "scan-1_receipt.png")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "image-bytes" {
		t.Fatalf("unexpected content %q", got)
	}

	entries, err := os.ReadDir(store.basePath)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = store.Open(context.Background(), "missing.png")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeysCannotEscapeBasePath(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../etc/passwd", "/abs/path", "nested/key.png"} {
		err := store.Save(context.Background(), key, strings.NewReader("x"))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
