package scorer

import (
	"strings"

	"golang.org/x/crypto/sha3"
)

// NormalizeAddress canonicalizes an EVM address to lowercase hex for storage
// and lookup. It does not validate; call ValidAddress first on untrusted input.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress reports whether address is a well-formed EVM address.
// All-lowercase and all-uppercase hex are always accepted; a mixed-case
// address must carry a correct EIP-55 checksum.
func ValidAddress(address string) bool {
	if len(address) != 42 || address[:2] != "0x" {
		return false
	}
	body := address[2:]
	if !isHex(body) {
		return false
	}

	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body == lower || body == upper {
		return true
	}

	return ChecksumAddress("0x"+lower) == address
}

// ChecksumAddress returns the EIP-55 mixed-case form of a lowercase address.
func ChecksumAddress(address string) string {
	body := strings.ToLower(strings.TrimPrefix(address, "0x"))

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(body))
	hash := hasher.Sum(nil)

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' {
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return len(s) > 0
}
