package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// generatePrefixedID creates a globally unique ID in the format:
//
//	{prefix}_{unix_nano}_{12_hex_chars}
//
// The 12 hex characters are derived from 6 cryptographically random bytes,
// giving 48 bits of randomness to avoid collisions at the same nanosecond.
// If crypto/rand fails, the ID omits the random suffix and relies on the
// nanosecond timestamp alone.
func generatePrefixedID(prefix string) string {
	timestamp := time.Now().UnixNano()

	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%s_%d", prefix, timestamp)
	}

	return fmt.Sprintf("%s_%d_%s", prefix, timestamp, hex.EncodeToString(b[:]))
}

// GenerateDemID creates a DEM correlation id in the external format
// "DEM-YYYYMMDD-NNN" (UTC date bucket, 3-digit random suffix).
// Generated once at dispatch time and never rewritten.
func GenerateDemID(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	suffix := int64(100)
	if err == nil {
		suffix = n.Int64() + 100
	}
	return fmt.Sprintf("DEM-%s-%d", now.UTC().Format("20060102"), suffix)
}
