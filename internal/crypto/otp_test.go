package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestGenerateOTPFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatal(err)
		}
		if !ValidOTPFormat(code) {
			t.Fatalf("generated code %q is not 6 digits", code)
		}
	}
}

func TestHashOTPContract(t *testing.T) {
	// The stored hash must be hex(SHA-256(code ":" salt)).
	sum := sha256.Sum256([]byte("123456:abcdef"))
	want := hex.EncodeToString(sum[:])
	if got := HashOTP("123456", "abcdef"); got != want {
		t.Fatalf("HashOTP = %q, want %q", got, want)
	}
}

func TestVerifyOTP(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	hash := HashOTP("042917", salt)

	if !VerifyOTP("042917", salt, hash) {
		t.Fatal("correct code did not verify")
	}

	// Flipping any single character must flip the result.
	code := []byte("042917")
	for i := range code {
		bad := make([]byte, len(code))
		copy(bad, code)
		bad[i] = '0' + (code[i]-'0'+1)%10
		if VerifyOTP(string(bad), salt, hash) {
			t.Fatalf("code %q verified against hash of %q", bad, code)
		}
	}

	// Wrong salt must fail even with the right code.
	if VerifyOTP("042917", "other-salt", hash) {
		t.Fatal("verify succeeded with the wrong salt")
	}
}

func TestValidOTPFormat(t *testing.T) {
	valid := []string{"000000", "123456", "999999"}
	invalid := []string{"", "12345", "1234567", "12345a", "12 456", "-12345"}

	for _, c := range valid {
		if !ValidOTPFormat(c) {
			t.Errorf("ValidOTPFormat(%q) = false, want true", c)
		}
	}
	for _, c := range invalid {
		if ValidOTPFormat(c) {
			t.Errorf("ValidOTPFormat(%q) = true, want false", c)
		}
	}
}

func TestNewSaltUnique(t *testing.T) {
	a, _ := NewSalt()
	b, _ := NewSalt()
	if a == b {
		t.Fatal("salts should differ")
	}
	if len(a) != saltBytes*2 {
		t.Fatalf("salt length %d, want %d hex chars", len(a), saltBytes*2)
	}
}
