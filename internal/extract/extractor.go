package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
)

// Func turns raw file bytes into plain text.
type Func func(data []byte) (string, error)

// Registry maps a file-type tag to its extractor. Adding a format is a table
// entry, not a new branch.
type Registry struct {
	extractors map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Func)}
	r.Register("txt", extractPlainText)
	r.Register("pdf", extractPDF)
	r.Register("docx", extractDOCX)
	r.Register("doc", extractDOCX)
	r.Register("html", extractHTML)
	return r
}

func (r *Registry) Register(fileType string, fn Func) {
	r.extractors[strings.ToLower(fileType)] = fn
}

func (r *Registry) Supported(fileType string) bool {
	_, ok := r.extractors[strings.ToLower(fileType)]
	return ok
}

// Extract dispatches on fileType. Unknown types are a validation error, not a
// dependency failure.
func (r *Registry) Extract(fileType string, data []byte) (string, error) {
	fn, ok := r.extractors[strings.ToLower(fileType)]
	if !ok {
		return "", domain.Validation("unsupported file type: %s", fileType)
	}

	text, err := fn(data)
	if err != nil {
		return "", domain.Validation("failed to extract text from %s file: %v", fileType, err)
	}

	return normalizeWhitespace(text), nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

func extractPlainText(data []byte) (string, error) {
	return string(data), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plainReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf stream: %w", err)
	}

	return string(out), nil
}

// docx is a zip archive; the body text lives in word/document.xml. Paragraph
// boundaries become newlines, everything else is flattened to character data.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx archive: %w", err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("document.xml not found in archive")
	}
	defer docXML.Close()

	decoder := xml.NewDecoder(docXML)
	var sb strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}

	return sb.String(), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return doc.Find("body").Text(), nil
}
