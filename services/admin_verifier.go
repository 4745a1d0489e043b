package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"edith/models"

	"golang.org/x/crypto/bcrypt"
)

// AdminVerifier decides whether a credential may replace the knowledge
// document. Implementations return ErrUnauthorized on mismatch and must not
// say why.
type AdminVerifier interface {
	Verify(ctx context.Context, credential string) error
}

// SharedSecretVerifier compares against a plain shared secret. It is only
// fit for a prototype; prefer BcryptVerifier.
type SharedSecretVerifier struct {
	secret []byte
}

func NewSharedSecretVerifier(secret string) *SharedSecretVerifier {
	return &SharedSecretVerifier{secret: []byte(secret)}
}

func (v *SharedSecretVerifier) Verify(ctx context.Context, credential string) error {
	if len(v.secret) == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(credential), v.secret) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BcryptVerifier checks the credential against a bcrypt hash so the secret
// itself never has to be configured on the server.
type BcryptVerifier struct {
	hash []byte
}

func NewBcryptVerifier(hash string) (*BcryptVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return &BcryptVerifier{hash: []byte(hash)}, nil
}

func (v *BcryptVerifier) Verify(ctx context.Context, credential string) error {
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(credential))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// DenyAllVerifier rejects every credential. Used when no admin secret is configured.
type DenyAllVerifier struct{}

func (DenyAllVerifier) Verify(context.Context, string) error { return ErrUnauthorized }

// KnowledgeAdmin guards knowledge replacement behind an AdminVerifier.
type KnowledgeAdmin struct {
	store    KnowledgeStore
	verifier AdminVerifier
}

func NewKnowledgeAdmin(store KnowledgeStore, verifier AdminVerifier) *KnowledgeAdmin {
	if verifier == nil {
		verifier = DenyAllVerifier{}
	}
	return &KnowledgeAdmin{store: store, verifier: verifier}
}

// Update replaces the knowledge document. Calling it twice with the same
// document leaves the same stored document.
func (a *KnowledgeAdmin) Update(ctx context.Context, credential string, doc models.KnowledgeDocument) error {
	if err := a.verifier.Verify(ctx, credential); err != nil {
		RecordKnowledgeUpdate("unauthorized")
		return ErrUnauthorized
	}
	if err := a.store.Replace(ctx, doc); err != nil {
		RecordKnowledgeUpdate("error")
		return err
	}
	RecordKnowledgeUpdate("ok")
	return nil
}
