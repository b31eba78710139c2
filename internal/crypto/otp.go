package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// OTP parameters are part of the observable purchase contract: a 6-digit
// numeric code, valid for 10 minutes, stored as hex(SHA-256(code ":" salt)).
const (
	OTPDigits = 6
	OTPTTL    = 10 * time.Minute

	saltBytes = 12
)

var otpRegex = regexp.MustCompile(`^[0-9]{6}$`)

// GenerateOTP returns a cryptographically random 6-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NewSalt returns a random hex-encoded salt.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashOTP computes the stored hash for a code and salt.
func HashOTP(code, salt string) string {
	sum := sha256.Sum256([]byte(code + ":" + salt))
	return hex.EncodeToString(sum[:])
}

// VerifyOTP compares a candidate code against the stored hash without
// leaking where the comparison diverged.
func VerifyOTP(code, salt, storedHash string) bool {
	computed := HashOTP(code, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// ValidOTPFormat reports whether code is exactly six ASCII digits.
func ValidOTPFormat(code string) bool {
	return otpRegex.MatchString(code)
}
