package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

const backupCodeBytes = 4

// GenerateBackupCodes returns n recovery codes formatted XXXX-XXXX (upper
// hex). Only HashBackupCode output may be persisted.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		var b [backupCodeBytes]byte
		if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
			return nil, err
		}
		raw := strings.ToUpper(hex.EncodeToString(b[:]))
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, FormatBackupCode(raw))
	}
	return codes, nil
}

// FormatBackupCode splits an 8 character code into two groups of four.
func FormatBackupCode(code string) string {
	if len(code) != 2*backupCodeBytes {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// CanonicalizeBackupCode uppercases and strips separators. It returns "" if
// the result is not 8 hex characters.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 2*backupCodeBytes {
		return ""
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return ""
		}
	}
	return s
}

// HashBackupCode binds a canonical code to its account and returns a hex
// SHA-256 digest.
func HashBackupCode(accountID, canonicalCode string) string {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
