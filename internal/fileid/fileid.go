// Package fileid fingerprints file contents.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
)

const contentPrefix = "sha256:"

// ContentID returns a fingerprint of data. Used to tell our own dataset
// writes apart from external edits.
func ContentID(data []byte) string {
	hash := sha256.Sum256(data)
	return contentPrefix + hex.EncodeToString(hash[:])
}
