package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/docchat/docchat/internal/models"
)

// Extractor converts uploaded files to plain text. Markdown and plain
// text pass through after UTF-8 validation; HTML is stripped to its
// visible text; PDF goes through the pdf reader.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(data []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".html", ".htm":
		return extractHTML(data)
	default:
		return extractText(data, filename)
	}
}

func extractText(data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", models.ErrDecode, filename)
	}
	return string(data), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse HTML: %v", models.ErrDecode, err)
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Text())
	// Collapse runs of whitespace left behind by removed markup.
	return strings.Join(strings.Fields(text), " "), nil
}

func extractPDF(data []byte) (string, error) {
	// The pdf library works with file paths, so spill to a temp file.
	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %v", models.ErrDecode, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("%w: failed to write temp pdf: %v", models.ErrDecode, err)
	}

	f, rdr, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("%w: failed to open pdf: %v", models.ErrDecode, err)
	}
	defer f.Close()

	reader, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: failed to read pdf text: %v", models.ErrDecode, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("%w: failed to read pdf buffer: %v", models.ErrDecode, err)
	}

	return buf.String(), nil
}
