package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jo25425/dona-sub000/internal/core"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestEntriesSkipsNoise(t *testing.T) {
	data := buildZip(t, map[string]string{
		"inbox/t1/message_1.json":    "{}",
		"__MACOSX/inbox/._message_1": "x",
		"inbox/.DS_Store":            "x",
		"inbox/":                     "",
	})
	entries, err := Entries([]core.File{{Name: "a.zip", Data: data}})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "inbox/t1/message_1.json" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Base() != "message_1.json" {
		t.Fatalf("unexpected base %q", entries[0].Base())
	}
	body, err := entries[0].ReadAll()
	if err != nil || string(body) != "{}" {
		t.Fatalf("unexpected body %q err=%v", body, err)
	}
}

func TestEntriesRejectsNonZip(t *testing.T) {
	if _, err := Entries([]core.File{{Name: "x.zip", Data: []byte("not a zip")}}); err == nil {
		t.Fatalf("expected error for invalid archive")
	}
}

func TestExpandText(t *testing.T) {
	data := buildZip(t, map[string]string{"chat.txt": "hello", "media.jpg": "bin"})
	files, err := ExpandText([]core.File{
		{Name: "export.zip", Data: data},
		{Name: "plain.txt", Data: []byte("plain")},
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Name != "chat.txt" || string(files[0].Data) != "hello" {
		t.Fatalf("unexpected first file %+v", files[0])
	}
	if files[1].Name != "plain.txt" {
		t.Fatalf("expected passthrough, got %s", files[1].Name)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	files, err := ReadFiles(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(files) != 1 || files[0].Name != "chat.txt" || string(files[0].Data) != "hello" {
		t.Fatalf("unexpected files %+v", files)
	}
	if _, err := ReadFiles(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
