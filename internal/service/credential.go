package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/usecase"
	"github.com/passportlabs/scorer/jws"
)

// CredentialService verifies and caches externally issued stamps.
type CredentialService struct {
	stamps  usecase.StampRepository
	scoring *usecase.ScoringUsecase
	resolve jws.KeyResolver

	verifyBudget time.Duration
}

func NewCredentialService(
	stamps usecase.StampRepository,
	scoring *usecase.ScoringUsecase,
	resolve jws.KeyResolver,
	verifyBudget time.Duration,
) *CredentialService {
	return &CredentialService{
		stamps:       stamps,
		scoring:      scoring,
		resolve:      resolve,
		verifyBudget: verifyBudget,
	}
}

// ValidateCredential verifies a detached JWS and its nonce binding, and
// returns the decoded credential without persisting anything.
func (s *CredentialService) ValidateCredential(ctx context.Context, doc scorer.DetachedJWS, nonce string) (*scorer.VerifiableCredential, error) {
	ctx, span := tracer.Start(ctx, "Credential.Service.ValidateCredential")
	defer span.End()

	var vc *scorer.VerifiableCredential
	err := bounded(ctx, s.verifyBudget, func() error {
		var verr error
		vc, verr = jws.Verify(doc, s.resolve)
		return verr
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, jws.ErrSignature) {
			return nil, domain.ValidationError{Reason: err.Error()}
		}
		return nil, domain.ValidationError{Reason: "malformed credential"}
	}

	if !jws.BindsNonce(doc, nonce) {
		err := domain.ValidationError{Reason: "credential does not commit to session nonce"}
		span.RecordError(err)
		return nil, err
	}

	return vc, nil
}

// SubmitStamps verifies each document, binds it to the session nonce and
// caches it for the address, then queues rescoring everywhere the address
// has been scored. A replayed credential object fails with DuplicateError.
func (s *CredentialService) SubmitStamps(ctx context.Context, address, nonce string, docs []scorer.DetachedJWS) ([]domain.Stamp, error) {
	ctx, span := tracer.Start(ctx, "Credential.Service.SubmitStamps")
	defer span.End()

	address = scorer.NormalizeAddress(address)

	saved := make([]domain.Stamp, 0, len(docs))
	for _, doc := range docs {
		vc, err := s.ValidateCredential(ctx, doc, nonce)
		if err != nil {
			return nil, err
		}

		if !subjectMatches(vc.CredentialSubject.ID, address) {
			err := domain.ValidationError{Reason: "credential subject does not match address"}
			span.RecordError(err)
			return nil, err
		}
		if vc.CredentialSubject.Provider == "" {
			err := domain.ValidationError{Reason: "credential carries no provider"}
			span.RecordError(err)
			return nil, err
		}
		if !vc.ExpirationDate.After(vc.IssuanceDate) {
			err := domain.ValidationError{Reason: "credential expires before issuance"}
			span.RecordError(err)
			return nil, err
		}

		fingerprint := ""
		if vc.Proof != nil {
			fingerprint = scorer.ProofFingerprint(vc.Proof.ProofValue)
		}

		payload, err := base64.RawURLEncoding.DecodeString(doc.Payload)
		if err != nil {
			return nil, domain.ValidationError{Reason: "malformed payload encoding"}
		}

		stamp, err := s.stamps.Save(ctx, domain.Stamp{
			Address:          address,
			Provider:         vc.CredentialSubject.Provider,
			Hash:             scorer.ContentHash(vc),
			ProofFingerprint: fingerprint,
			IssuanceDate:     vc.IssuanceDate,
			ExpirationDate:   vc.ExpirationDate,
			Credential:       string(payload),
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		saved = append(saved, stamp)
	}

	if err := s.scoring.RescoreAddress(ctx, address); err != nil {
		span.RecordError(errors.Wrap(err, "rescore dispatch failed"))
		return nil, err
	}

	return saved, nil
}

// DeleteStamp tombstones a cached credential and queues rescoring.
func (s *CredentialService) DeleteStamp(ctx context.Context, address, provider string) error {
	ctx, span := tracer.Start(ctx, "Credential.Service.DeleteStamp")
	defer span.End()

	address = scorer.NormalizeAddress(address)

	if err := s.stamps.SoftDelete(ctx, address, provider); err != nil {
		span.RecordError(err)
		return err
	}

	return s.scoring.RescoreAddress(ctx, address)
}

// GetStamps lists the live stamps cached for an address.
func (s *CredentialService) GetStamps(ctx context.Context, address string) ([]domain.Stamp, error) {
	return s.stamps.Active(ctx, scorer.NormalizeAddress(address))
}

// StampHistory lists stamps including tombstoned ones, newest first.
func (s *CredentialService) StampHistory(ctx context.Context, address string, limit, offset int) ([]domain.Stamp, error) {
	return s.stamps.History(ctx, scorer.NormalizeAddress(address), limit, offset)
}

// subjectMatches accepts did:pkh style subjects whose trailing component is
// the stamp's address.
func subjectMatches(subject, address string) bool {
	subject = scorer.NormalizeAddress(subject)
	return subject == address || strings.HasSuffix(subject, ":"+address)
}
