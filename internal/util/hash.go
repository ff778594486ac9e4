package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ContentHashHex is the hex sha256 of the raw content. Document ids are
// derived from it, so the same bytes always hash to the same document.
func ContentHashHex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ContentHashHexFromReader computes the same hash as ContentHashHex
// without buffering the content, for files read off disk.
func ContentHashHexFromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
