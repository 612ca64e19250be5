// Package fasta reads and writes FASTA sequence files.
package fasta

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrNoRecords is returned by ReadSingle when the file holds no records.
	ErrNoRecords = errors.New("no FASTA records found")

	// ErrMultipleRecords is returned by ReadSingle when the file holds more
	// than one record.
	ErrMultipleRecords = errors.New("more than one FASTA record found")
)

// Record is a single FASTA record.
type Record struct {
	ID          string // First word of the header line
	Description string // Full header line without the leading '>'
	Seq         string
}

// Len returns the sequence length.
func (r Record) Len() int {
	return len(r.Seq)
}

// ReadSingle reads a FASTA file that must contain exactly one record.
// Gzipped files (.gz) are decompressed transparently.
func ReadSingle(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("open FASTA file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	// Handle gzipped files
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Record{}, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	records, err := Parse(reader)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	switch len(records) {
	case 0:
		return Record{}, fmt.Errorf("read %s: %w", path, ErrNoRecords)
	case 1:
		return records[0], nil
	default:
		return Record{}, fmt.Errorf("read %s: %w (%d)", path, ErrMultipleRecords, len(records))
	}
}

// Parse reads all records from r. Sequence lines are concatenated with
// surrounding whitespace removed; blank lines are ignored.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long sequences
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	var (
		records []Record
		current *Record
		seq     strings.Builder
		line    int
	)

	flush := func() {
		if current != nil {
			current.Seq = seq.String()
			records = append(records, *current)
		}
		seq.Reset()
	}

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, ">") {
			flush()
			current = parseHeader(text)
			continue
		}

		if current == nil {
			return nil, &ParseError{Line: line, Message: "sequence data before first header"}
		}
		seq.WriteString(text)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan FASTA: %w", err)
	}

	flush()
	return records, nil
}

// parseHeader splits a header line into ID and description.
func parseHeader(header string) *Record {
	desc := strings.TrimSpace(strings.TrimPrefix(header, ">"))
	id := desc
	if idx := strings.IndexAny(desc, " \t"); idx != -1 {
		id = desc[:idx]
	}
	return &Record{ID: id, Description: desc}
}

// ParseError represents an error during FASTA parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("FASTA parse error at line %d: %s", e.Line, e.Message)
}
