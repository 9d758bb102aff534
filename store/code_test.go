package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVerificationCodeLengthAndAlphabet(t *testing.T) {
	code, err := newVerificationCode()
	assert.NoError(t, err)
	assert.Len(t, code, verificationCodeLength)

	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q", r)
	}
}

func TestCodeByteLimitIsAlphabetMultiple(t *testing.T) {
	// the rejection threshold must divide evenly or character frequencies skew
	assert.Zero(t, int(codeByteLimit)%len(codeAlphabet))
	assert.Greater(t, int(codeByteLimit), 0)
}

func TestNewVerificationCodeIsNotRepeating(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		code, err := newVerificationCode()
		assert.NoError(t, err)

		_, dup := seen[code]
		assert.False(t, dup, "duplicate code generated")
		seen[code] = struct{}{}
	}
}
