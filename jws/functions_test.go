package jws

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/passportlabs/scorer"
)

func signedDoc(t *testing.T, priv ed25519.PrivateKey, nonce string) scorer.DetachedJWS {
	t.Helper()

	vc := scorer.VerifiableCredential{
		Issuer:         "did:key:issuer",
		IssuanceDate:   time.Now().UTC(),
		ExpirationDate: time.Now().UTC().Add(24 * time.Hour),
		CredentialSubject: scorer.CredentialSubject{
			ID:       "did:pkh:eip155:1:0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			Provider: "Github",
			Hash:     "v0.0.0:Zm9vYmFy",
			Nonce:    nonce,
		},
	}
	payloadBytes, err := json.Marshal(vc)
	if err != nil {
		t.Fatalf("marshal credential: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)

	headerBytes, _ := json.Marshal(Header{Algorithm: "EdDSA", KeyID: "issuer-key"})
	protected := base64.RawURLEncoding.EncodeToString(headerBytes)

	sig := ed25519.Sign(priv, []byte(protected+"."+payload))

	return scorer.DetachedJWS{
		Payload: payload,
		Signatures: []scorer.JWSSignature{
			{
				Protected: protected,
				Signature: base64.RawURLEncoding.EncodeToString(sig),
			},
		},
	}
}

func staticResolver(pub ed25519.PublicKey) KeyResolver {
	return func(h Header) ([]byte, error) { return []byte(pub), nil }
}

func TestVerifyValidDocument(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "nonce-1")

	vc, err := Verify(doc, staticResolver(pub))
	if err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
	if vc.CredentialSubject.Provider != "Github" {
		t.Errorf("unexpected provider %s", vc.CredentialSubject.Provider)
	}
}

func TestVerifyTamperedFields(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)

	flip := func(s string) string {
		raw, _ := base64.RawURLEncoding.DecodeString(s)
		raw[0] ^= 0x01
		return base64.RawURLEncoding.EncodeToString(raw)
	}

	tamper := map[string]func(*scorer.DetachedJWS){
		"payload":   func(d *scorer.DetachedJWS) { d.Payload = flip(d.Payload) },
		"protected": func(d *scorer.DetachedJWS) { d.Signatures[0].Protected = flip(d.Signatures[0].Protected) },
		"signature": func(d *scorer.DetachedJWS) { d.Signatures[0].Signature = flip(d.Signatures[0].Signature) },
	}

	for name, mutate := range tamper {
		doc := signedDoc(t, priv, "nonce-1")
		mutate(&doc)
		_, err := Verify(doc, staticResolver(pub))
		if !errors.Is(err, ErrSignature) {
			t.Errorf("tampered %s: expected signature error, got %v", name, err)
		}
	}
}

func TestVerifyAllEntriesChecked(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "nonce-1")

	// append a second, invalid entry; the whole document must fail
	bogus := doc.Signatures[0]
	raw, _ := base64.RawURLEncoding.DecodeString(bogus.Signature)
	raw[5] ^= 0xff
	bogus.Signature = base64.RawURLEncoding.EncodeToString(raw)
	doc.Signatures = append(doc.Signatures, bogus)

	_, err := Verify(doc, staticResolver(pub))
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyEmptyPayload(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "nonce-1")
	doc.Payload = ""

	_, err := Verify(doc, staticResolver(pub))
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyNoSignatures(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "nonce-1")
	doc.Signatures = nil

	_, err := Verify(doc, staticResolver(pub))
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "nonce-1")

	resolve := func(h Header) ([]byte, error) { return nil, errors.New("no such key") }
	_, err := Verify(doc, resolve)
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestBindsNonce(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	doc := signedDoc(t, priv, "session-nonce")

	if !BindsNonce(doc, "session-nonce") {
		t.Errorf("expected nonce to bind")
	}
	if BindsNonce(doc, "other-nonce") {
		t.Errorf("expected foreign nonce to be rejected")
	}
	if BindsNonce(doc, "") {
		t.Errorf("empty expected nonce must never bind")
	}
}
