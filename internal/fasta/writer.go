package fasta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultLineWidth is the sequence line width used by Writer.
const DefaultLineWidth = 60

// Writer writes FASTA records.
type Writer struct {
	w     *bufio.Writer
	width int
}

// NewWriter creates a FASTA writer wrapping sequence lines at width
// characters. A width of 0 or less writes each sequence on one line.
func NewWriter(w io.Writer, width int) *Writer {
	return &Writer{
		w:     bufio.NewWriter(w),
		width: width,
	}
}

// Write writes a single record. The header is the ID followed by the
// description, unless the description already starts with the ID.
func (fw *Writer) Write(r Record) error {
	header := r.ID
	switch {
	case r.Description == "":
	case r.Description == r.ID, strings.HasPrefix(r.Description, r.ID+" "):
		header = r.Description
	default:
		header = r.ID + " " + r.Description
	}

	if _, err := fmt.Fprintf(fw.w, ">%s\n", header); err != nil {
		return err
	}

	seq := r.Seq
	if fw.width <= 0 {
		_, err := fw.w.WriteString(seq + "\n")
		return err
	}
	for len(seq) > 0 {
		n := min(fw.width, len(seq))
		if _, err := fw.w.WriteString(seq[:n] + "\n"); err != nil {
			return err
		}
		seq = seq[n:]
	}
	return nil
}

// Flush flushes any buffered data.
func (fw *Writer) Flush() error {
	return fw.w.Flush()
}

// WriteFile writes a single record to path.
func WriteFile(path string, r Record, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create FASTA file: %w", err)
	}

	w := NewWriter(f, width)
	if err := w.Write(r); err != nil {
		f.Close()
		return fmt.Errorf("write FASTA record: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush FASTA file: %w", err)
	}
	return f.Close()
}
