package authcore

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// Backup codes are user-typed credentials, so they get a salted memory-hard
// hash rather than a bare digest. Parameters are modest: a code verification
// walks the whole unused set.
const (
	backupCodeSaltSize    = 16
	backupCodeArgonTime   = 1
	backupCodeArgonMemory = 16 * 1024 // KiB
	backupCodeArgonLanes  = 2
	backupCodeArgonKeyLen = 32
)

// backupCodeAlphabet omits ambiguous characters (0/O, 1/I/L).
const backupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

func hashBackupCode(code string, salt []byte) []byte {
	normalized := normalizeBackupCode(code)
	return argon2.IDKey([]byte(normalized), salt, backupCodeArgonTime, backupCodeArgonMemory, backupCodeArgonLanes, backupCodeArgonKeyLen)
}

func matchBackupCode(code string, rec BackupCodeRecord) bool {
	computed := hashBackupCode(code, rec.Salt)
	return subtle.ConstantTimeCompare(computed, rec.Hash) == 1
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// newBackupCodes generates count plaintext codes and their storage records.
// The plaintext slice is returned to the caller exactly once.
func newBackupCodes(userID string, count, length int) ([]string, []BackupCodeRecord, error) {
	plain := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)

	for i := 0; i < count; i++ {
		code, err := randomBackupCode(length)
		if err != nil {
			return nil, nil, err
		}

		salt := make([]byte, backupCodeSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}

		plain = append(plain, formatBackupCode(code))
		records = append(records, BackupCodeRecord{
			ID:     uuid.NewString(),
			UserID: userID,
			Salt:   salt,
			Hash:   hashBackupCode(code, salt),
		})
	}

	return plain, records, nil
}

func randomBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// formatBackupCode inserts a hyphen midway for readability; verification
// strips it again.
func formatBackupCode(code string) string {
	if len(code) < 4 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}
