package git

import (
	"crypto/sha1" //nolint:gosec // git object IDs are SHA-1
	"encoding/hex"
	"strconv"

	"github.com/colonyops/mend/internal/core/session"
)

// BlobFingerprint returns the git blob object ID of content, the same value
// `git hash-object` prints for it in a SHA-1 repository.
func BlobFingerprint(content []byte) session.Fingerprint {
	h := sha1.New() //nolint:gosec
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write(content)
	return session.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
