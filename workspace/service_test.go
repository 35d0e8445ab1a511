package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create workspace service: %v", err)
	}
	return svc
}

func TestResolvePathStaysUnderRoot(t *testing.T) {
	svc := createTestService(t)

	// Traversal attempts are collapsed inside the root, never escape it
	for _, bad := range []string{"../outside", "a/../../outside", "../../etc/passwd"} {
		full, err := svc.resolvePath(bad)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(full, svc.Root()) {
			t.Errorf("resolvePath(%q) escaped the root: %s", bad, full)
		}
	}

	full, err := svc.resolvePath("sub/dir/file.txt")
	if err != nil {
		t.Fatalf("unexpected error for valid path: %v", err)
	}
	if want := filepath.Join(svc.Root(), "sub", "dir", "file.txt"); full != want {
		t.Errorf("expected %s, got %s", want, full)
	}
}

func TestSaveFileDeduplicatesNames(t *testing.T) {
	svc := createTestService(t)

	first, err := svc.SaveFile("notes.txt", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if first.Name != "notes.txt" {
		t.Errorf("expected notes.txt, got %s", first.Name)
	}

	second, err := svc.SaveFile("notes.txt", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if second.Name != "notes 2.txt" {
		t.Errorf("expected deduplicated name 'notes 2.txt', got %s", second.Name)
	}

	// Both files exist with their own content
	data, err := os.ReadFile(filepath.Join(svc.Root(), first.Name))
	if err != nil || string(data) != "one" {
		t.Errorf("first file content wrong: %q err=%v", data, err)
	}
	data, err = os.ReadFile(filepath.Join(svc.Root(), second.Name))
	if err != nil || string(data) != "two" {
		t.Errorf("second file content wrong: %q err=%v", data, err)
	}
}

func TestSaveFileSanitizesNames(t *testing.T) {
	svc := createTestService(t)

	saved, err := svc.SaveFile("../esc?ape*.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if strings.ContainsAny(saved.Name, "?*") || strings.Contains(saved.Name, "..") {
		t.Errorf("expected sanitized name, got %s", saved.Name)
	}
	if _, err := os.Stat(filepath.Join(svc.Root(), saved.Name)); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}

func TestListFilesSkipsHidden(t *testing.T) {
	svc := createTestService(t)

	if err := os.WriteFile(filepath.Join(svc.Root(), "visible.txt"), []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(svc.Root(), ".hidden"), []byte("h"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(svc.Root(), "docs"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := svc.ListFiles("")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %d: %#v", len(files), files)
	}
	// Directories sort first
	if !files[0].IsDir || files[0].Name != "docs" {
		t.Errorf("expected docs directory first, got %#v", files[0])
	}
	if files[1].Name != "visible.txt" || files[1].MimeType != "text/plain" {
		t.Errorf("unexpected file entry: %#v", files[1])
	}
}

func TestWatcherNotifiesOnCreate(t *testing.T) {
	svc := createTestService(t)

	events := make(chan ChangeEvent, 10)
	svc.SetChangeHandler(func(event ChangeEvent) {
		events <- event
	})

	if err := svc.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer svc.Stop()

	if err := os.WriteFile(filepath.Join(svc.Root(), "dropped.txt"), []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-events:
		if event.Path != "dropped.txt" {
			t.Errorf("expected dropped.txt, got %s", event.Path)
		}
		if event.Op != EventCreate && event.Op != EventWrite {
			t.Errorf("expected create or write, got %s", event.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestDeleteFileRefusesRoot(t *testing.T) {
	svc := createTestService(t)

	if err := svc.DeleteFile(""); err == nil {
		t.Error("expected error deleting workspace root")
	}
	if err := svc.DeleteFile("."); err == nil {
		t.Error("expected error deleting workspace root via dot")
	}
}
