// Package fhir provides FHIR Bundle reading and writing.
package fhir

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Bundle is a FHIR Bundle. Entries keep their resources as decoded JSON
// objects; typed decoding happens on demand (see Resource.Observation).
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	Type         string  `json:"type,omitempty"`
	Link         []Link  `json:"link,omitempty"`
	Entry        []Entry `json:"entry,omitempty"`
}

// Entry wraps a single resource in a Bundle.
type Entry struct {
	FullURL  string   `json:"fullUrl,omitempty"`
	Resource Resource `json:"resource"`
}

// Link is a Bundle navigation link (e.g. relation "next").
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// NewTransactionBundle wraps resources in a transaction Bundle, in order.
func NewTransactionBundle(resources []Resource) *Bundle {
	b := &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Entry:        make([]Entry, 0, len(resources)),
	}
	for _, r := range resources {
		b.Entry = append(b.Entry, Entry{Resource: r})
	}
	return b
}

// ReadBundle opens and parses a Bundle file.
// Supports both plain and gzipped (.json.gz) files.
func ReadBundle(path string) (*Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)

	// Check for gzip magic number (0x1f, 0x8b)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("create gzip reader: %w", err)}
		}
		defer gz.Close()
		r = gz
	}

	b, err := ParseBundle(r)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return b, nil
}

// ParseBundle decodes a Bundle from r.
func ParseBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// WriteBundle writes b as indented JSON to path. The file is written to a
// temporary name first and renamed into place.
func WriteBundle(path string, b *Bundle) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create bundle directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write bundle: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// ParseError represents a failure to read a Bundle file as JSON.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bundle parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
