package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civicflow/lifecycle"
	"civicflow/models"
)

// ProofRepository handles database operations for resolution proofs
type ProofRepository struct {
	db *sql.DB
}

// NewProofRepository creates a new proof repository
func NewProofRepository(db *sql.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

// CreateProof inserts a resolution proof
func (r *ProofRepository) CreateProof(ctx context.Context, p *models.ResolutionProof) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO resolution_proofs (
			complaint_id, staff_id, evidence_ref, fingerprint, is_verified, verified_by, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ComplaintID, p.StaffID, p.EvidenceRef, p.Fingerprint, p.IsVerified, p.VerifiedBy, p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create resolution proof: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get proof ID: %w", err)
	}
	p.ProofID = id
	return nil
}

// GetProof retrieves a proof by ID
func (r *ProofRepository) GetProof(ctx context.Context, proofID int64) (*models.ResolutionProof, error) {
	var p models.ResolutionProof
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT proof_id, complaint_id, staff_id, evidence_ref, fingerprint, is_verified, verified_by, captured_at
		FROM resolution_proofs WHERE proof_id = ?`, proofID,
	).Scan(&p.ProofID, &p.ComplaintID, &p.StaffID, &p.EvidenceRef, &p.Fingerprint, &p.IsVerified, &p.VerifiedBy, &p.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound("resolution proof", proofID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution proof: %w", err)
	}
	return &p, nil
}

// ListProofs returns the proofs of a complaint, oldest first
func (r *ProofRepository) ListProofs(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT proof_id, complaint_id, staff_id, evidence_ref, fingerprint, is_verified, verified_by, captured_at
		FROM resolution_proofs
		WHERE complaint_id = ?
		ORDER BY captured_at ASC, proof_id ASC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolution proofs: %w", err)
	}
	defer rows.Close()

	proofs := []models.ResolutionProof{}
	for rows.Next() {
		var p models.ResolutionProof
		if err := rows.Scan(&p.ProofID, &p.ComplaintID, &p.StaffID, &p.EvidenceRef, &p.Fingerprint,
			&p.IsVerified, &p.VerifiedBy, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolution proof: %w", err)
		}
		proofs = append(proofs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolution proofs: %w", err)
	}
	return proofs, nil
}

// CountProofs counts the proofs of a complaint regardless of verification
func (r *ProofRepository) CountProofs(ctx context.Context, complaintID int64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resolution_proofs WHERE complaint_id = ?`, complaintID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count resolution proofs: %w", err)
	}
	return n, nil
}

// MarkVerified flags a proof as verified by verifierID
func (r *ProofRepository) MarkVerified(ctx context.Context, proofID, verifierID int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE resolution_proofs SET is_verified = TRUE, verified_by = ? WHERE proof_id = ?`,
		verifierID, proofID)
	if err != nil {
		return fmt.Errorf("failed to verify resolution proof: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return lifecycle.NotFound("resolution proof", proofID)
	}
	return nil
}

// DeleteProofsByComplaint removes every proof of a complaint and returns how many went
func (r *ProofRepository) DeleteProofsByComplaint(ctx context.Context, complaintID int64) (int, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM resolution_proofs WHERE complaint_id = ?`, complaintID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolution proofs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
