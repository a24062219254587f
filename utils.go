package scorer

import (
	"strings"
)

// ContentHash extracts the dedup content commitment from a credential.
// Empty means the credential carries no commitment and cannot be deduped.
func ContentHash(vc *VerifiableCredential) string {
	return strings.TrimSpace(vc.CredentialSubject.Hash)
}

// ProofFingerprint normalizes a proof value into the secondary dedup key
// identifying the exact same credential object across submissions.
// Hex-encoded values lose their 0x prefix and casing; anything else is
// kept verbatim since base64 payloads are case-sensitive.
func ProofFingerprint(proofValue string) string {
	v := strings.TrimSpace(proofValue)
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		body := v[2:]
		if isHex(body) {
			return strings.ToLower(body)
		}
	}
	return v
}
