// Package archive enumerates the entries of exported zip archives.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/core"
)

// Entry is one usable file inside an archive.
type Entry struct {
	Name string
	file *zip.File
}

// ReadAll returns the entry's contents.
func (e Entry) ReadAll() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open entry %s", e.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %s", e.Name)
	}
	return data, nil
}

// Base is the last path element of the entry name.
func (e Entry) Base() string { return path.Base(e.Name) }

// Excluded reports whether an entry name is archive noise: macOS resource
// forks, Finder metadata, directories or blank names.
func Excluded(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed == "" ||
		strings.HasPrefix(name, "__MACOSX/") ||
		strings.HasSuffix(name, ".DS_Store") ||
		strings.HasSuffix(name, "/")
}

// Entries lists every non-excluded entry across the given archives, in order.
func Entries(files []core.File) ([]Entry, error) {
	var out []Entry
	for _, f := range files {
		zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
		if err != nil {
			return nil, errors.Wrapf(err, "read archive %s", f.Name)
		}
		for _, zf := range zr.File {
			if Excluded(zf.Name) || zf.FileInfo().IsDir() {
				continue
			}
			out = append(out, Entry{Name: zf.Name, file: zf})
		}
	}
	return out, nil
}

// IsZip sniffs the local file header signature.
func IsZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// ExpandText replaces every zip file with its .txt entries and passes other
// files through untouched.
func ExpandText(files []core.File) ([]core.File, error) {
	out := make([]core.File, 0, len(files))
	for _, f := range files {
		if !IsZip(f.Data) {
			out = append(out, f)
			continue
		}
		entries, err := Entries([]core.File{f})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name, ".txt") {
				continue
			}
			data, err := e.ReadAll()
			if err != nil {
				return nil, err
			}
			out = append(out, core.File{Name: e.Name, Data: data})
		}
	}
	return out, nil
}

// ReadFiles loads donation files from disk, keeping their base names.
func ReadFiles(paths ...string) ([]core.File, error) {
	out := make([]core.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		out = append(out, core.File{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}
