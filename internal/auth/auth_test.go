package auth

import (
	"context"
	"strings"
	"testing"
)

func TestDevTokenRoundTrip(t *testing.T) {
	v := NewDevVerifier("unit-secret")
	token := SignDevToken("unit-secret", "uid-123", "Alice")

	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UID != "uid-123" || id.Name != "Alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestDevTokenRejectsTampering(t *testing.T) {
	v := NewDevVerifier("unit-secret")
	token := SignDevToken("unit-secret", "uid-123", "Alice")

	cases := map[string]string{
		"wrong secret":   SignDevToken("other-secret", "uid-123", "Alice"),
		"truncated":      token[:len(token)-2],
		"missing parts":  "onlyonepart",
		"empty token":    "",
		"flipped sig":    token[:len(token)-1] + flip(token[len(token)-1:]),
		"swapped fields": swapFirstTwo(token),
	}
	for name, tok := range cases {
		if _, err := v.Verify(context.Background(), tok); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func flip(s string) string {
	if s == "a" {
		return "b"
	}
	return "a"
}

func swapFirstTwo(token string) string {
	parts := strings.Split(token, ".")
	return parts[1] + "." + parts[0] + "." + parts[2]
}
