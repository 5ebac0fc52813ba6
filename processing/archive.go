package processing

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const MimeZip = "application/zip"

// NamedFile is an in-memory upload.
type NamedFile struct {
	Name string
	Data []byte
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// SanitizeFilename strips directories and characters that are unsafe in
// download names.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		return "file"
	}
	return name
}

// RenameToZip packs files into a ZIP archive, naming each from pattern.
// "{n}" in the pattern is replaced by the 1-based position; without it the
// position is appended. Extensions are preserved and clashes get a suffix.
func RenameToZip(files []NamedFile, pattern string) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to rename")
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = "document-{n}"
	}
	if !strings.Contains(pattern, "{n}") {
		pattern += "-{n}"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := map[string]int{}
	now := time.Now()

	for i, f := range files {
		ext := filepath.Ext(f.Name)
		base := SanitizeFilename(strings.ReplaceAll(pattern, "{n}", strconv.Itoa(i+1)))
		name := base + ext
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		seen[base+ext]++

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
