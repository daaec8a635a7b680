// Package pdfutil inspects uploaded PDF documents.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// PageCount returns the number of pages in a PDF. Malformed documents return
// an error instead of panicking inside the parser.
func PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}

// FirstPageText returns the plain text of the first page, trimmed to limit
// runes. Used for log previews of uploaded documents.
func FirstPageText(data []byte, limit int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	if doc.NumPage() == 0 {
		return "", nil
	}
	p := doc.Page(1)
	if p.V.IsNull() {
		return "", nil
	}
	content, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page 1: %w", err)
	}
	content = strings.Join(strings.Fields(content), " ")
	if r := []rune(content); limit > 0 && len(r) > limit {
		content = string(r[:limit])
	}
	return content, nil
}
