package service

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/jws"
)

func TestStaticKeyResolver(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef}
	resolve := StaticKeyResolver(map[string]string{
		"hex-issuer": "0xdeadbeef",
		"b64-issuer": base64.StdEncoding.EncodeToString(key),
	})

	resolved, err := resolve(jws.Header{Algorithm: "EdDSA", KeyID: "hex-issuer"})
	if err != nil {
		t.Fatalf("hex key: %v", err)
	}
	if string(resolved) != string(key) {
		t.Errorf("hex key = %x", resolved)
	}

	resolved, err = resolve(jws.Header{Algorithm: "EdDSA", KeyID: "b64-issuer"})
	if err != nil {
		t.Fatalf("base64 key: %v", err)
	}
	if string(resolved) != string(key) {
		t.Errorf("base64 key = %x", resolved)
	}

	_, err = resolve(jws.Header{Algorithm: "EdDSA", KeyID: "unknown"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown kid: %v", err)
	}
}
