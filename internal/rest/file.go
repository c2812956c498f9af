package rest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// File is an uploadable multipart part. Its bytes come from Path when set,
// otherwise from Data.
type File struct {
	Data     []byte
	Path     string
	MimeType string
	FileName string
}

// NewFile returns a File backed by inline bytes.
func NewFile(data []byte, mimeType, fileName string) File {
	return File{Data: data, MimeType: mimeType, FileName: fileName}
}

// FileFromPath returns a File read from disk at send time. The file name
// defaults to the base name of path.
func FileFromPath(path, mimeType string) File {
	return File{Path: path, MimeType: mimeType, FileName: filepath.Base(path)}
}

// Bytes resolves the file content, preferring the referenced path.
func (f File) Bytes() ([]byte, error) {
	if f.Path != "" {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %q: %w", f.Path, err)
		}
		return data, nil
	}
	if f.Data != nil {
		return f.Data, nil
	}
	return nil, ErrEmptyFile
}

// Equal reports whether two files carry the same bytes, name and MIME type.
// Files that only reference a path compare by path.
func (f File) Equal(other File) bool {
	if f.FileName != other.FileName || f.MimeType != other.MimeType {
		return false
	}
	if f.Data == nil && other.Data == nil {
		return f.Path == other.Path
	}
	return bytes.Equal(f.Data, other.Data)
}

// Describe renders the file for debug output without its content.
func (f File) Describe() map[string]any {
	d := map[string]any{
		"name": f.FileName,
		"type": f.MimeType,
		"size": len(f.Data),
	}
	if f.Path != "" {
		d["url"] = f.Path
		if info, err := os.Stat(f.Path); err == nil {
			d["size"] = info.Size()
		}
	}
	return d
}

func (f File) String() string {
	return fmt.Sprintf("File(name: %s, type: %s, size: %d)", f.FileName, f.MimeType, len(f.Data))
}
