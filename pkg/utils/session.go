package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh UUID for entity identifiers.
func NewID() string {
	return uuid.NewString()
}

// IsValidID reports whether s parses as a UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GenerateSessionID derives an anonymous analytics session from request
// fingerprint data. Rotates hourly.
func GenerateSessionID(input string) string {
	hash := md5.Sum([]byte(input + fmt.Sprintf("%d", time.Now().Unix()/3600)))
	return hex.EncodeToString(hash[:])[:16]
}

// MD5Hash generates MD5 hash of input string
func MD5Hash(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}
