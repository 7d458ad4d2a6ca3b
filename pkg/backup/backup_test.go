package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	service := NewService(storage, "1.0.0")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	service.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return service, dir
}

func sampleArchive() *Archive {
	return &Archive{Records: []Record{
		{Collection: "rooms", ID: "r1", Fields: json.RawMessage(`{"name":"General"}`)},
		{Collection: "rooms/r1/roles", ID: "x", Fields: json.RawMessage(`{"role":"staff"}`)},
		{Collection: "rooms/r1/messages", ID: "m1", Fields: json.RawMessage(`{"message":"hi"}`)},
		{Collection: "rooms/r1/messages", ID: "m2", Fields: json.RawMessage(`{"message":"there"}`)},
	}}
}

func TestService_SaveAndLoad(t *testing.T) {
	service, dir := newTestService(t)

	name, err := service.Save(context.Background(), sampleArchive())
	if err != nil {
		t.Fatalf("failed to save backup: %v", err)
	}
	if !IsArchiveName(name) {
		t.Fatalf("unexpected backup name %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	loaded, err := service.Load(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to load backup: %v", err)
	}
	if loaded.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", loaded.Version)
	}
	if len(loaded.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(loaded.Records))
	}
	if string(loaded.Records[2].Fields) != `{"message":"hi"}` {
		t.Errorf("fields not preserved: %s", loaded.Records[2].Fields)
	}
}

func TestArchive_Count(t *testing.T) {
	counts := sampleArchive().Count()
	if counts["rooms"] != 1 || counts["rooms/*/roles"] != 1 || counts["rooms/*/messages"] != 2 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestService_ListIsOrderedAndFiltered(t *testing.T) {
	service, dir := newTestService(t)

	var saved []string
	for i := 0; i < 3; i++ {
		name, err := service.Save(context.Background(), &Archive{})
		if err != nil {
			t.Fatalf("failed to save backup: %v", err)
		}
		saved = append(saved, name)
	}
	if err := os.WriteFile(filepath.Join(dir, "backup-notes.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list backups: %v", err)
	}
	if strings.Join(names, ",") != strings.Join(saved, ",") {
		t.Errorf("expected %v, got %v", saved, names)
	}
}

func TestService_Prune(t *testing.T) {
	service, _ := newTestService(t)

	var saved []string
	for i := 0; i < 4; i++ {
		name, err := service.Save(context.Background(), &Archive{})
		if err != nil {
			t.Fatalf("failed to save backup: %v", err)
		}
		saved = append(saved, name)
	}

	deleted, err := service.Prune(context.Background(), 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if len(deleted) != 2 || deleted[0] != saved[0] || deleted[1] != saved[1] {
		t.Errorf("expected the two oldest deleted, got %v", deleted)
	}

	names, err := service.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != saved[2] {
		t.Errorf("unexpected remaining backups %v", names)
	}

	deleted, err = service.Prune(context.Background(), 0)
	if err != nil || deleted != nil {
		t.Errorf("keep=0 must not delete anything, got %v, %v", deleted, err)
	}
}

func TestService_RejectsForeignNames(t *testing.T) {
	service, _ := newTestService(t)

	for _, name := range []string{"../etc/passwd", "backup-x.json", "notes.txt"} {
		if _, err := service.Load(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Load(%q): expected ErrInvalidName, got %v", name, err)
		}
		if err := service.Delete(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Delete(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "test.txt", strings.NewReader("test data")); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := storage.Load(ctx, "test.txt")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	loaded.Close()

	files, err := storage.List(ctx, "test")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file, got %d", len(files))
	}

	if err := storage.Save(ctx, "../escape.txt", strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for a path outside the directory, got %v", err)
	}

	if err := storage.Delete(ctx, "test.txt"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test.txt")); !os.IsNotExist(err) {
		t.Error("file should be deleted")
	}
}
