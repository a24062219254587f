package siwe

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/passportlabs/scorer"
)

// Message is a parsed sign-in-with-ethereum challenge.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        string
	Nonce          string
	IssuedAt       string
	ExpirationTime *string
}

const signInPhrase = " wants you to sign in with your Ethereum account:"

// Parse reads the EIP-4361 text layout. The claimed address inside the body
// is informational only; authentication always uses the recovered signer.
func Parse(raw string) (*Message, error) {

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("message too short")
	}

	if !strings.HasSuffix(lines[0], signInPhrase) {
		return nil, fmt.Errorf("missing sign-in preamble")
	}

	msg := Message{
		Domain:  strings.TrimSuffix(lines[0], signInPhrase),
		Address: strings.TrimSpace(lines[1]),
	}

	// Only known field keys are consumed as fields. A statement line may
	// itself contain ": " and must survive into the statement verbatim.
	var statement []string
	for _, line := range lines[2:] {
		if key, value, found := strings.Cut(line, ": "); found {
			switch key {
			case "URI":
				msg.URI = value
				continue
			case "Version":
				msg.Version = value
				continue
			case "Chain ID":
				msg.ChainID = value
				continue
			case "Nonce":
				msg.Nonce = value
				continue
			case "Issued At":
				msg.IssuedAt = value
				continue
			case "Expiration Time":
				v := value
				msg.ExpirationTime = &v
				continue
			}
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			statement = append(statement, trimmed)
		}
	}
	msg.Statement = strings.Join(statement, "\n")

	if msg.Domain == "" {
		return nil, fmt.Errorf("missing domain")
	}
	if msg.Nonce == "" {
		return nil, fmt.Errorf("missing nonce")
	}

	return &msg, nil
}

// ValidateDomain matches the message domain against an allow-list,
// case-insensitively. An empty domain or empty allow-list always rejects.
func ValidateDomain(domain string, allowlist []string) bool {
	if domain == "" {
		return false
	}
	for _, allowed := range allowlist {
		if strings.EqualFold(domain, allowed) {
			return true
		}
	}
	return false
}

// ValidateExpiration checks an optional expiration timestamp. A nil value is
// valid (the nonce TTL bounds the session); an empty string, a timestamp
// without timezone information, or anything unparseable is invalid.
func ValidateExpiration(expiration *string) bool {
	if expiration == nil {
		return true
	}
	if *expiration == "" {
		return false
	}

	// RFC3339 refuses timezone-naive datetimes, which are ambiguous
	parsed, err := time.Parse(time.RFC3339, *expiration)
	if err != nil {
		return false
	}

	return parsed.After(time.Now().UTC())
}

// Recover returns the lowercase address that produced an EIP-191 personal
// signature over the raw message text.
func Recover(message string, signature string) (string, error) {

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("malformed signature encoding")
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("bad signature length")
	}

	// wallets emit V as 27/28, go-ethereum expects 0/1
	if sig[64] >= 27 {
		sig = append([]byte{}, sig...)
		sig[64] -= 27
	}

	hash := personalHash(message)

	pubkey, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("signature recovery failed")
	}

	return scorer.NormalizeAddress(ethcrypto.PubkeyToAddress(*pubkey).Hex()), nil
}

func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}
