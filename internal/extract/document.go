package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Document is the read-only view of an uploaded document the extractor needs
type Document interface {
	// Text returns all extractable text content, pages concatenated.
	Text() (string, error)
	// Metadata returns the document information entry stored under key.
	Metadata(key string) (string, bool)
}

// PDFDocument adapts a PDF file to Document
type PDFDocument struct {
	reader *pdf.Reader
	closer io.Closer
}

// OpenPDF opens the PDF at path. The caller must Close it.
func OpenPDF(path string) (doc *PDFDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return &PDFDocument{reader: r, closer: f}, nil
}

// Close releases the underlying file
func (d *PDFDocument) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Text implements Document
func (d *PDFDocument) Text() (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf text: %v", r)
		}
	}()

	rd, err := d.reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return buf.String(), nil
}

// Metadata implements Document using the trailer's /Info dictionary
func (d *PDFDocument) Metadata(key string) (value string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()

	v := d.reader.Trailer().Key("Info").Key(key)
	if v.IsNull() || v.Kind() != pdf.String {
		return "", false
	}
	if s := v.Text(); s != "" {
		return s, true
	}
	return v.RawString(), true
}
