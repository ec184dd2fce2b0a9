// Package extract pulls plain text out of the document formats the
// assistant ingests: PDF, Word, HTML, Markdown and plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// SupportedExtensions lists the file types Text can handle.
var SupportedExtensions = []string{".pdf", ".docx", ".html", ".htm", ".md", ".txt"}

// Supported reports whether the file's extension has a parser.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Text extracts the plain text of the document at path. Extraction never
// fails hard: problems come back as a readable message in the text, the
// same way the tool layer reports them to the model.
func Text(path string) string {
	filename := filepath.Base(path)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("Document not found at path: %s", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Sprintf("Could not load document %s: %v", filename, err)
	}

	text, err := fromReader(file, info.Size(), path)
	if err != nil {
		return fmt.Sprintf("Could not load document %s: %v", filename, err)
	}
	return text
}

// Bytes extracts text from an in-memory document, as received on upload.
// filename determines the format.
func Bytes(data []byte, filename string) string {
	text, err := fromReader(bytes.NewReader(data), int64(len(data)), filename)
	if err != nil {
		return fmt.Sprintf("Could not load document %s: %v", filepath.Base(filename), err)
	}
	return text
}

func fromReader(r io.ReaderAt, size int64, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(r, size)
	case ".docx":
		return docxText(r, size)
	case ".html", ".htm":
		return htmlText(io.NewSectionReader(r, 0, size))
	case ".md", ".txt":
		return plainText(io.NewSectionReader(r, 0, size))
	default:
		return "", fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}

func pdfText(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func docxText(r io.ReaderAt, size int64) (string, error) {
	doc, err := docx.ReadDocxFromMemory(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

func plainText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
