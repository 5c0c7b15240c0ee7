package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// TokenSize128 gives 128 bits of entropy (22 chars base64url).
const TokenSize128 = 16

// InvitationAlphabet omits the letter I so codes survive being read aloud.
const InvitationAlphabet = "ABCDEFGHJKLMNOPQRSTUVWXYZ0123456789"

// InvitationCodeLength is the length of every invitation code.
const InvitationCodeLength = 8

// GenerateToken returns size random bytes encoded as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateInvitationCode returns a random code drawn from InvitationAlphabet.
// Uniqueness is the caller's concern.
func GenerateInvitationCode() (string, error) {
	max := big.NewInt(int64(len(InvitationAlphabet)))
	code := make([]byte, InvitationCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("cryptox: generate invitation code: %w", err)
		}
		code[i] = InvitationAlphabet[n.Int64()]
	}
	return string(code), nil
}
