// Package extract pulls plain text out of attachment bytes.
package extract

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// maxTextLength caps text taken from a single attachment.
const maxTextLength = 20000

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the attachment's text, or "" for formats it cannot read.
func (e *Extractor) ExtractText(filename, mimeType string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(filename))

	var text string
	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		text = pdfText(filename, data)
	case strings.HasPrefix(mimeType, "text/"), ext == ".txt", ext == ".csv", ext == ".md":
		text = plainText(data)
	case mimeType == "application/json", ext == ".json":
		text = plainText(data)
	default:
		return ""
	}
	return clip(strings.TrimSpace(text))
}

func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func pdfText(filename string, data []byte) (text string) {
	defer func() {
		// the parser panics on some malformed documents
		if r := recover(); r != nil {
			log.Printf("[Extract] PDF parser panicked on %s: %v", filename, r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("[Extract] Unable to open PDF %s: %v", filename, err)
		return ""
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		log.Printf("[Extract] Unable to read PDF %s: %v", filename, err)
		return ""
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(plain, maxTextLength*4)); err != nil {
		return ""
	}
	return buf.String()
}

func clip(text string) string {
	if len(text) <= maxTextLength {
		return text
	}
	cut := maxTextLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
