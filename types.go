package scorer

import (
	"time"
)

const (
	// TypeVerifiableCredential is the w3c type tag every stamp document carries.
	TypeVerifiableCredential string = "VerifiableCredential"
)

// CredentialSubject is the claim body of a stamp: which address controls an
// account on which provider, plus the content commitment used for dedup.
type CredentialSubject struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Hash     string `json:"hash"`
	Nonce    string `json:"nonce,omitempty"`
}

type CredentialProof struct {
	Type       string `json:"type"`
	Created    string `json:"created,omitempty"`
	ProofValue string `json:"proofValue"`
}

// VerifiableCredential is an externally issued stamp document.
type VerifiableCredential struct {
	Context           []string          `json:"@context,omitempty"`
	Type              []string          `json:"type,omitempty"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      time.Time         `json:"issuanceDate"`
	ExpirationDate    time.Time         `json:"expirationDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *CredentialProof  `json:"proof,omitempty"`
}

// JWSSignature is one entry of a detached-JWS signature list.
type JWSSignature struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

// DetachedJWS carries a base64url payload alongside one or more detached
// signatures over `protected || "." || payload`.
type DetachedJWS struct {
	Payload    string         `json:"payload"`
	Signatures []JWSSignature `json:"signatures"`
}

// Event is published on the score update channel.
type Event struct {
	Type        string    `json:"type"`
	CommunityID int64     `json:"communityID"`
	Address     string    `json:"address"`
	Timestamp   time.Time `json:"timestamp"`
}
