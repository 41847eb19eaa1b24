package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProofFingerprint(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	fp := ProofFingerprint("s3://evidence/a.jpg", 20, at)

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, ProofFingerprint("s3://evidence/a.jpg", 20, at))
	assert.NotEqual(t, fp, ProofFingerprint("s3://evidence/b.jpg", 20, at))
	assert.NotEqual(t, fp, ProofFingerprint("s3://evidence/a.jpg", 21, at))
	assert.NotEqual(t, fp, ProofFingerprint("s3://evidence/a.jpg", 20, at.Add(time.Nanosecond)))
}
