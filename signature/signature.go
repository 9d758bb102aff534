// Package signature binds an approval action to its consent payload with a
// keyed hash. Verification recomputes the hash from the stored canonical
// payload, so any post-hoc edit of the stored flags is detectable without
// asymmetric cryptography.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kindred-inc/kindred-api/schema"
)

// Payload is the set of fields covered by a consent signature.
type Payload struct {
	ConsentVersion        string              `json:"consent_version"`
	ParentName            string              `json:"parent_name"`
	ParentEmail           string              `json:"parent_email"`
	SignerFullName        string              `json:"signer_full_name"`
	ConsentFlags          schema.ConsentFlags `json:"consent_flags"`
	FinalConsentConfirmed bool                `json:"final_consent_confirmed"`
	Timestamp             time.Time           `json:"ts"`
}

// Canonicalize renders the payload as a deterministic JSON string. Struct
// field order is fixed and timestamps are normalized to UTC RFC3339Nano, so
// the same payload always produces the same bytes.
func Canonicalize(p Payload) (string, error) {
	p.Timestamp = p.Timestamp.UTC().Truncate(time.Millisecond)

	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("canonicalize signature payload: %w", err)
	}
	return string(b), nil
}

// Sign computes the keyed hash over the canonical payload plus any external
// signature input (e.g. a device attestation blob supplied by the client).
// It returns the hex hash and the canonical payload that must be stored
// alongside it for later verification.
func Sign(p Payload, externalInput string, secret []byte) (hash string, canonical string, err error) {
	canonical, err = Canonicalize(p)
	if err != nil {
		return "", "", err
	}

	return digest(canonical, externalInput, secret), canonical, nil
}

// Verify recomputes the hash from the stored canonical payload and compares
// in constant time. It is a pure function of stored data plus the server
// secret, so audits are reproducible.
func Verify(canonical, externalInput string, secret []byte, hash string) bool {
	expected := digest(canonical, externalInput, secret)
	return hmac.Equal([]byte(expected), []byte(hash))
}

func digest(canonical, externalInput string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(canonical))
	mac.Write([]byte(externalInput))
	return hex.EncodeToString(mac.Sum(nil))
}
