package store

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet deliberately omits characters that are ambiguous in emailed
// links (0/O, 1/l/I) and anything needing URL escaping.
const codeAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

// verificationCodeLength matches the 32-character ids used for consent links.
const verificationCodeLength = 32

// codeByteLimit is the largest multiple of len(codeAlphabet) that fits in a
// byte. Bytes at or above it are discarded so every alphabet character is
// drawn with equal probability.
const codeByteLimit = byte(256 - 256%len(codeAlphabet))

// newVerificationCode draws a code from crypto/rand. Uniqueness among live
// codes is enforced by the unique sparse index on the consent collection;
// collisions at this entropy are not a practical concern but insertion would
// fail loudly rather than silently reuse a code.
func newVerificationCode() (string, error) {
	out := make([]byte, 0, verificationCodeLength)
	buf := make([]byte, verificationCodeLength)

	for len(out) < verificationCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}

		for _, b := range buf {
			if b >= codeByteLimit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == verificationCodeLength {
				break
			}
		}
	}

	return string(out), nil
}
