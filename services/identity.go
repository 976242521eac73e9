// services/identity.go
package services

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

const referralCodeLength = 8

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// IsValidCodeFormat rejects malformed referral codes before any store access.
// Codes are exactly 8 alphanumeric characters, compared case-insensitively.
func IsValidCodeFormat(code string) bool {
	return codePattern.MatchString(strings.ToUpper(code))
}

// NormalizeCode is the canonical form stored and compared everywhere.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// deriveBaseCode takes the first 8 alphanumeric characters of the wallet
// address — the code users already know from the front end. Addresses too
// short to yield 8 characters fall through to the salted derivation.
func deriveBaseCode(walletAddress string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(walletAddress) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == referralCodeLength {
				return b.String()
			}
		}
	}
	return ""
}

// deriveSaltedCode re-derives a code when the base code collides with a
// different wallet. Deterministic per (address, attempt), so retries across
// process restarts converge on the same code.
func deriveSaltedCode(walletAddress string, attempt int) string {
	sum := sha256.Sum256([]byte(walletAddress + "#" + strconv.Itoa(attempt)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:referralCodeLength]
}
