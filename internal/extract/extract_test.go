package extract

import (
	"testing"

	"ragkit/internal/ragerr"

	"github.com/stretchr/testify/require"
)

func TestExtractTXT(t *testing.T) {
	e := New(1024)
	mediaType, text, err := e.Extract("notes.txt", []byte("hello world\n"))
	require.NoError(t, err)
	require.Equal(t, MediaTypeTXT, mediaType)
	require.Equal(t, "hello world", text)
}

func TestExtractTXTLatin1Fallback(t *testing.T) {
	e := New(1024)
	// 0xE9 is é in latin-1 and invalid UTF-8 on its own.
	_, text, err := e.Extract("legacy.txt", []byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	require.Equal(t, "café", text)
}

func TestExtractRejectsUnknownType(t *testing.T) {
	e := New(1024)
	_, _, err := e.Extract("image.png", []byte{1, 2, 3})
	var unsupported *ragerr.UnsupportedFileTypeError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "image.png", unsupported.Filename)
}

func TestExtractRejectsOversize(t *testing.T) {
	e := New(4)
	_, _, err := e.Extract("big.txt", []byte("too large"))
	var tooLarge *ragerr.FileTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, int64(4), tooLarge.Limit)
}

func TestExtractCorruptPDF(t *testing.T) {
	e := New(1024)
	_, _, err := e.Extract("broken.pdf", []byte("not a pdf at all"))
	var extractErr *ragerr.ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

func TestExtractEmptyText(t *testing.T) {
	e := New(1024)
	_, _, err := e.Extract("blank.txt", []byte("   \n\t "))
	var extractErr *ragerr.ExtractionError
	require.ErrorAs(t, err, &extractErr)
}
