package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ExtractFile reads path and returns its plain text. PDF files go through
// page-level text extraction; everything else must be valid UTF-8. Files
// larger than maxSize bytes are rejected before being read.
func ExtractFile(path string, maxSize int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", fmt.Errorf("file exceeds size limit: %d > %d bytes", info.Size(), maxSize)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return string(content), nil
}

// extractPDF concatenates the plain text of every page. Pages that fail
// to extract are skipped rather than failing the file.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
