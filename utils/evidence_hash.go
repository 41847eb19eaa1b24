package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// ProofFingerprint returns the SHA-256 integrity fingerprint of a resolution proof.
//
// Hash input is: evidence_ref bytes || staff_id (int64 LE) || captured_at (Unix nano int64 LE).
// capturedAt must be the server time at submission, never a client value.
//
// The fingerprint detects tampering with the stored row after capture. It is not
// proof of authenticity of the referenced evidence.
func ProofFingerprint(evidenceRef string, staffID int64, capturedAt time.Time) string {
	buf := bytes.NewBufferString(evidenceRef)
	_ = binary.Write(buf, binary.LittleEndian, staffID)
	_ = binary.Write(buf, binary.LittleEndian, capturedAt.UnixNano())

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:])
}
