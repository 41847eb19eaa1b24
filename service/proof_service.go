package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"
	"civicflow/utils"

	"go.uber.org/zap"
)

const maxEvidenceRefLength = 512

// ProofService manages resolution proofs: staff evidence that the work was done.
// Binary evidence lives in external storage; proofs only carry its reference.
type ProofService struct {
	tx         TxRunner
	complaints ComplaintStore
	proofs     ProofStore
	audit      AuditSink
	logger     *zap.Logger
	now        func() time.Time
}

// NewProofService creates a new proof service
func NewProofService(stores Stores, audit AuditSink, logger *zap.Logger) *ProofService {
	return &ProofService{
		tx:         stores.Tx,
		complaints: stores.Complaints,
		proofs:     stores.Proofs,
		audit:      audit,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitProof records a proof for an IN_PROGRESS complaint. Only STAFF or DEPT_HEAD
// of the complaint's department may submit.
func (s *ProofService) SubmitProof(
	ctx context.Context,
	complaintID int64,
	actor models.ActorContext,
	evidenceRef string,
) (*models.ResolutionProof, error) {
	evidenceRef = strings.TrimSpace(evidenceRef)
	if evidenceRef == "" {
		return nil, &lifecycle.ValidationError{Field: "evidence_ref", Message: "is required"}
	}
	if len(evidenceRef) > maxEvidenceRefLength {
		return nil, &lifecycle.ValidationError{Field: "evidence_ref", Message: fmt.Sprintf("must be at most %d characters", maxEvidenceRefLength)}
	}

	var proof *models.ResolutionProof
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleStaff && actor.Role != models.RoleDeptHead {
			return &lifecycle.ForbiddenError{Role: actor.Role, Rule: "only STAFF or DEPT_HEAD can submit resolution proof"}
		}
		if !lifecycle.SameDepartment(actor.DepartmentID, c.DepartmentPtr()) {
			return &lifecycle.DepartmentMismatchError{
				ComplaintID:         complaintID,
				ActorDepartment:     actor.DepartmentID,
				ComplaintDepartment: c.DepartmentPtr(),
			}
		}
		if c.Status != models.StatusInProgress {
			return &lifecycle.InvalidStateTransitionError{
				ComplaintID: complaintID,
				From:        c.Status,
				To:          models.StatusResolved,
				Reason:      fmt.Sprintf("resolution proof can only be submitted while IN_PROGRESS, complaint is %s", c.Status),
			}
		}

		capturedAt := s.now()
		proof = &models.ResolutionProof{
			ComplaintID: complaintID,
			StaffID:     actor.UserID,
			EvidenceRef: evidenceRef,
			Fingerprint: utils.ProofFingerprint(evidenceRef, actor.UserID, capturedAt),
			CapturedAt:  capturedAt,
		}
		if err := s.proofs.CreateProof(ctx, proof); err != nil {
			return err
		}
		return s.audit.RecordGenericAction(ctx, "resolution_proof", proof.ProofID, "proof_submitted", actor,
			nil, map[string]any{"complaint_id": complaintID, "fingerprint": proof.Fingerprint}, "")
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("resolution proof submitted",
		zap.Int64("complaint_id", complaintID),
		zap.Int64("proof_id", proof.ProofID),
		zap.Int64("staff_id", actor.UserID))
	return proof, nil
}

// VerifyProof marks a proof verified. DEPT_HEAD of the complaint's department or ADMIN only.
func (s *ProofService) VerifyProof(
	ctx context.Context,
	complaintID, proofID int64,
	actor models.ActorContext,
) (*models.ResolutionProof, error) {
	var proof *models.ResolutionProof
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.proofs.GetProof(ctx, proofID)
		if err != nil {
			return err
		}
		if p.ComplaintID != complaintID {
			return lifecycle.NotFound("resolution proof", proofID)
		}
		c, err := s.complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		switch actor.Role {
		case models.RoleAdmin:
		case models.RoleDeptHead:
			if !lifecycle.SameDepartment(actor.DepartmentID, c.DepartmentPtr()) {
				return &lifecycle.DepartmentMismatchError{
					ComplaintID:         complaintID,
					ActorDepartment:     actor.DepartmentID,
					ComplaintDepartment: c.DepartmentPtr(),
				}
			}
		default:
			return &lifecycle.ForbiddenError{Role: actor.Role, Rule: "only DEPT_HEAD or ADMIN can verify resolution proof"}
		}
		if p.IsVerified {
			proof = p
			return nil
		}
		if err := s.proofs.MarkVerified(ctx, proofID, actor.UserID); err != nil {
			return err
		}
		p.IsVerified = true
		p.VerifiedBy.Int64, p.VerifiedBy.Valid = actor.UserID, true
		proof = p
		return s.audit.RecordGenericAction(ctx, "resolution_proof", proofID, "proof_verified", actor,
			map[string]any{"is_verified": false}, map[string]any{"is_verified": true}, "")
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// HasProof reports whether the complaint has at least one proof
func (s *ProofService) HasProof(ctx context.Context, complaintID int64) (bool, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return false, err
	}
	n, err := s.proofs.CountProofs(ctx, complaintID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListProofs returns the proofs of a complaint
func (s *ProofService) ListProofs(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.proofs.ListProofs(ctx, complaintID)
}
