package service

import (
	"encoding/base64"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/jws"
)

// StaticKeyResolver resolves issuer keys from a fixed kid→key table, as
// loaded from configuration. Keys are hex (0x-prefixed) or base64 encoded.
func StaticKeyResolver(keys map[string]string) jws.KeyResolver {
	return func(header jws.Header) ([]byte, error) {
		encoded, ok := keys[header.KeyID]
		if !ok {
			return nil, domain.NotFoundError{Resource: "issuer key"}
		}
		if strings.HasPrefix(encoded, "0x") {
			return hexutil.Decode(encoded)
		}
		return base64.StdEncoding.DecodeString(encoded)
	}
}
