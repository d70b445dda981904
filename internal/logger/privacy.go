package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

const minHashSaltLength = 32

var hashSalt string

// InitHashSalt loads the log hashing salt from LOG_HASH_SALT. It panics when
// the salt is missing or too short, since actor identifiers would otherwise
// be trivially reversible from logs.
func InitHashSalt() {
	salt := os.Getenv("LOG_HASH_SALT")
	if len(salt) < minHashSaltLength {
		panic(fmt.Sprintf("LOG_HASH_SALT must be set and at least %d characters", minHashSaltLength))
	}
	hashSalt = salt
}

// InitHashSaltForTesting sets the salt directly, bypassing the environment.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

// HashActorID creates a privacy-preserving hash of an approver or submitter
// ID. This allows correlating workflow actions in logs without exposing the
// actual user IDs.
func HashActorID(actorID int64) string {
	data := fmt.Sprintf("%d:%s", actorID, hashSalt)
	hash := sha256.Sum256([]byte(data))
	// First 8 characters are enough to correlate within one deployment.
	return hex.EncodeToString(hash[:])[:8]
}

// SanitizeComment redacts free-text decision comments in logs while keeping
// enough shape information for debugging.
func SanitizeComment(comment string) string {
	if comment == "" {
		return "<empty>"
	}
	if len(comment) <= 10 {
		return fmt.Sprintf("<%d chars>", len(comment))
	}
	return fmt.Sprintf("%s...<%d chars>", comment[:3], len(comment))
}
