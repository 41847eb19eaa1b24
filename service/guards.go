package service

import (
	"context"
	"fmt"
)

// Guards answers the validator's proof and signoff preconditions from the stores.
type Guards struct {
	proofs   ProofStore
	signoffs SignoffStore
}

// NewGuards creates guards over the proof and signoff stores.
func NewGuards(proofs ProofStore, signoffs SignoffStore) *Guards {
	return &Guards{proofs: proofs, signoffs: signoffs}
}

// HasProof is true iff at least one resolution proof exists; verification does not matter.
func (g *Guards) HasProof(ctx context.Context, complaintID int64) (bool, error) {
	n, err := g.proofs.CountProofs(ctx, complaintID)
	if err != nil {
		return false, fmt.Errorf("failed to count proofs: %w", err)
	}
	return n > 0, nil
}

// HasAcceptedSignoff is true iff the citizen recorded an acceptance.
func (g *Guards) HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error) {
	ok, err := g.signoffs.HasAcceptedSignoff(ctx, complaintID)
	if err != nil {
		return false, fmt.Errorf("failed to check signoffs: %w", err)
	}
	return ok, nil
}
