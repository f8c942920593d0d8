// Package id generates and checks split job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Prefix starts every generated ID.
const Prefix = "cut-"

var pattern = regexp.MustCompile(`^cut-[0-9]+(-[0-9a-f]{12})?$`)

// Generate creates a new unique job ID.
// Format: cut-<unix nanos>-<random>, e.g. cut-1701432000123456789-a1b2c3d4e5f6
func Generate() string {
	timestamp := time.Now().UnixNano()
	random := make([]byte, 6)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("%s%d", Prefix, timestamp)
	}
	return fmt.Sprintf("%s%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}

// Valid reports whether s has the shape of a generated ID.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
