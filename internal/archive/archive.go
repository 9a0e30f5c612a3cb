// Package archive extracts candidate DMARC report XML payloads out of the
// supported container formats (.zip, .gz, .xml and .eml).
package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Payload is one candidate XML document found inside an input file.
type Payload struct {
	Name string
	Data []byte
}

// ExtractionError is returned when no payloads can be produced from an
// input: unsupported extension, corrupt archive or an archive without any
// XML entries.
type ExtractionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not extract %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("could not extract %s: %s", e.Name, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extract reads the file at path and returns every candidate XML payload in
// it. Handling is determined by the file extension. The file is only read,
// all handles are closed before Extract returns.
func Extract(path string) ([]Payload, error) {
	content, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, &ExtractionError{Name: path, Reason: "could not read file", Err: err}
	}

	if strings.EqualFold(filepath.Ext(path), ".eml") {
		return extractEML(filepath.Base(path), content)
	}

	return ExtractBytes(filepath.Base(path), content)
}

// ExtractBytes extracts the XML payloads from an in-memory file. The name's
// extension decides the handling, exactly as in Extract. This is the entry
// point for attachments that never touch the filesystem.
func ExtractBytes(name string, content []byte) ([]Payload, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return []Payload{{Name: name, Data: content}}, nil
	case ".gz":
		xmlContent, err := readGZ(content)
		if err != nil {
			return nil, &ExtractionError{Name: name, Reason: "invalid gzip stream", Err: err}
		}
		return []Payload{{Name: strings.TrimSuffix(name, filepath.Ext(name)), Data: xmlContent}}, nil
	case ".zip":
		payloads, err := readZIP(content)
		if err != nil {
			return nil, &ExtractionError{Name: name, Reason: "invalid zip archive", Err: err}
		}
		if len(payloads) == 0 {
			return nil, &ExtractionError{Name: name, Reason: "no xml files found in zip archive"}
		}
		return payloads, nil
	default:
		return nil, &ExtractionError{Name: name, Reason: fmt.Sprintf("unknown extension %s", filepath.Ext(name))}
	}
}

func readGZ(content []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("could not gzip read: %w", err)
	}
	defer gz.Close()

	xmlContent, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("could not read: %w", err)
	}
	return xmlContent, nil
}

// readZIP returns every XML entry of the archive in archive order. Entries
// that are not XML are skipped.
func readZIP(content []byte) ([]Payload, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("could not open zip: %w", err)
	}

	var payloads []Payload
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		x, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("could not open file %s inside zip: %w", f.Name, err)
		}
		xmlContent, err := io.ReadAll(x)
		if cerr := x.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("could not read file %s inside zip: %w", f.Name, err)
		}
		payloads = append(payloads, Payload{Name: f.FileInfo().Name(), Data: xmlContent})
	}
	return payloads, nil
}

// https://en.wikipedia.org/wiki/List_of_file_signatures
var magicTable = [][]byte{
	{31, 139},      // .gz "\x1f\x8b"
	{80, 75, 3, 4}, // .zip "\x50\x4B\x03\x04"
	{80, 75, 5, 6}, // .zip "\x50\x4B\x05\x06"
	{80, 75, 7, 8}, // .zip "\x50\x4B\x07\x08"
}

// IsSupportedArchive reports whether content starts with the magic bytes of
// a zip or gzip archive. Used to spot report archives that mail clients
// inlined instead of attaching.
func IsSupportedArchive(content []byte) bool {
	sliceEnd := 10
	if len(content) < sliceEnd {
		sliceEnd = len(content)
	}
	head := content[0:sliceEnd]

	for _, magic := range magicTable {
		if bytes.HasPrefix(head, magic) {
			return true
		}
	}

	return false
}
