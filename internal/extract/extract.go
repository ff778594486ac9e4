// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ragkit/internal/ragerr"
	"ragkit/internal/util"

	"github.com/ledongthuc/pdf"
)

const (
	MediaTypePDF = "pdf"
	MediaTypeTXT = "txt"
)

var errNoExtractableText = errors.New("no extractable text found")

// Extractor validates uploads against configured limits and extracts
// plain text per media type.
type Extractor struct {
	maxFileSize int64
}

func New(maxFileSize int64) *Extractor {
	return &Extractor{maxFileSize: maxFileSize}
}

// MediaType determines the media type from the filename extension.
func MediaType(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaTypePDF, nil
	case ".txt", ".text", ".md":
		return MediaTypeTXT, nil
	default:
		return "", &ragerr.UnsupportedFileTypeError{Filename: filename}
	}
}

// Extract returns sanitized plain text for the given upload, or a typed
// error: UnsupportedFileTypeError, FileTooLargeError or ExtractionError.
func (e *Extractor) Extract(filename string, content []byte) (mediaType, text string, err error) {
	mediaType, err = MediaType(filename)
	if err != nil {
		return "", "", err
	}
	if e.maxFileSize > 0 && int64(len(content)) > e.maxFileSize {
		return "", "", &ragerr.FileTooLargeError{Size: int64(len(content)), Limit: e.maxFileSize}
	}

	switch mediaType {
	case MediaTypePDF:
		text, err = extractPDF(content)
	case MediaTypeTXT:
		text, err = extractTXT(content)
	}
	if err != nil {
		return "", "", &ragerr.ExtractionError{Filename: filename, Err: err}
	}
	text = util.SanitizeText(text)
	if text == "" {
		return "", "", &ragerr.ExtractionError{Filename: filename, Err: errNoExtractableText}
	}
	return mediaType, text, nil
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractTXT(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	// Latin-1 fallback: every byte maps to the same code point.
	r := make([]rune, len(content))
	for i, b := range content {
		r[i] = rune(b)
	}
	return string(r), nil
}
