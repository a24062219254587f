package jws

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/passportlabs/scorer"
)

// SignatureError is returned for any structural or cryptographic failure
// while verifying a detached JWS. The reason never leaks key material.
type SignatureError struct {
	Reason string
}

func (e SignatureError) Error() string {
	if e.Reason == "" {
		return "signature verification failed"
	}
	return fmt.Sprintf("signature verification failed: %s", e.Reason)
}

// Is enables errors.Is matching on SignatureError.
func (e SignatureError) Is(target error) bool {
	_, ok := target.(SignatureError)
	if ok {
		return true
	}
	_, ok = target.(*SignatureError)
	return ok
}

// ErrSignature is the sentinel error for failed verification.
var ErrSignature = SignatureError{}

// Header is the protected header of one signature entry.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
}

// KeyResolver returns the public key material for a signature entry.
// EdDSA entries resolve to an ed25519.PublicKey, ES256K entries to a
// 33- or 65-byte secp256k1 public key.
type KeyResolver func(header Header) ([]byte, error)

// Verify checks every signature entry of a detached JWS, reconstructing the
// signing input as `protected || "." || payload` per entry. All entries must
// verify; a single invalid one fails the document.
func Verify(doc scorer.DetachedJWS, resolve KeyResolver) (*scorer.VerifiableCredential, error) {

	if doc.Payload == "" {
		return nil, SignatureError{Reason: "empty payload"}
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(doc.Payload)
	if err != nil {
		return nil, SignatureError{Reason: "payload is not base64url"}
	}

	if len(doc.Signatures) == 0 {
		return nil, SignatureError{Reason: "no signatures"}
	}

	for _, entry := range doc.Signatures {
		if err := verifyEntry(doc.Payload, entry, resolve); err != nil {
			return nil, err
		}
	}

	var vc scorer.VerifiableCredential
	err = json.Unmarshal(payloadBytes, &vc)
	if err != nil {
		return nil, fmt.Errorf("malformed credential payload: %w", err)
	}

	return &vc, nil
}

func verifyEntry(payload string, entry scorer.JWSSignature, resolve KeyResolver) error {

	headerBytes, err := base64.RawURLEncoding.DecodeString(entry.Protected)
	if err != nil {
		return SignatureError{Reason: "protected header is not base64url"}
	}

	var header Header
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return SignatureError{Reason: "malformed protected header"}
	}

	signature, err := base64.RawURLEncoding.DecodeString(entry.Signature)
	if err != nil {
		return SignatureError{Reason: "signature is not base64url"}
	}

	key, err := resolve(header)
	if err != nil {
		return SignatureError{Reason: "unknown signing key"}
	}

	signingInput := []byte(entry.Protected + "." + payload)

	switch header.Algorithm {
	case "EdDSA":
		if len(key) != ed25519.PublicKeySize {
			return SignatureError{Reason: "bad ed25519 key length"}
		}
		if !ed25519.Verify(ed25519.PublicKey(key), signingInput, signature) {
			return SignatureError{Reason: "eddsa verification failed"}
		}
	case "ES256K":
		if len(signature) < 64 {
			return SignatureError{Reason: "bad secp256k1 signature length"}
		}
		digest := sha256.Sum256(signingInput)
		if !ethcrypto.VerifySignature(key, digest[:], signature[:64]) {
			return SignatureError{Reason: "secp256k1 verification failed"}
		}
	default:
		return SignatureError{Reason: "unsupported algorithm"}
	}

	return nil
}

// BindsNonce reports whether the detached payload commits to the expected
// nonce, preventing replay of a previously cached credential in a new
// session. An empty expected nonce never binds.
func BindsNonce(doc scorer.DetachedJWS, nonce string) bool {
	if strings.TrimSpace(nonce) == "" {
		return false
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(doc.Payload)
	if err != nil {
		return false
	}

	var vc scorer.VerifiableCredential
	err = json.Unmarshal(payloadBytes, &vc)
	if err != nil {
		return false
	}

	return vc.CredentialSubject.Nonce == nonce
}
