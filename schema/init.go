// Package schema creates missing tables on startup. It never drops or overwrites existing ones.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type table struct {
	name string
	ddl  string
}

// tables in dependency order; complaints before everything that references it.
var tables = []table{
	{name: "categories", ddl: `
CREATE TABLE IF NOT EXISTS categories (
    category_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    name VARCHAR(255) NOT NULL COMMENT 'Category name',
    sla_days INT NOT NULL DEFAULT 7 COMMENT 'Days allowed to resolve',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "complaints", ddl: `
CREATE TABLE IF NOT EXISTS complaints (
    complaint_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_number VARCHAR(50) UNIQUE NOT NULL COMMENT 'Public-facing complaint number',
    citizen_id BIGINT NOT NULL COMMENT 'Complainant',
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    category_id BIGINT NULL,
    department_id BIGINT NULL COMMENT 'Owning department',
    staff_id BIGINT NULL COMMENT 'Assigned staff member',
    status ENUM('FILED', 'IN_PROGRESS', 'HOLD', 'RESOLVED', 'CLOSED', 'CANCELLED') NOT NULL DEFAULT 'FILED',
    priority ENUM('LOW', 'MEDIUM', 'HIGH', 'CRITICAL') NOT NULL DEFAULT 'MEDIUM',
    sla_days_assigned INT NOT NULL DEFAULT 7,
    sla_deadline DATETIME NULL,
    escalation_level INT NOT NULL DEFAULT 0,
    created_time DATETIME NOT NULL,
    start_time DATETIME NULL,
    resolved_time DATETIME NULL,
    closed_time DATETIME NULL,
    updated_time DATETIME NULL,
    version BIGINT NOT NULL DEFAULT 1 COMMENT 'Optimistic concurrency token',
    FOREIGN KEY (category_id) REFERENCES categories(category_id) ON DELETE SET NULL,
    INDEX idx_citizen_id (citizen_id),
    INDEX idx_department_status (department_id, status),
    INDEX idx_status_deadline (status, sla_deadline),
    INDEX idx_created_time (created_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "complaint_status_history", ddl: `
CREATE TABLE IF NOT EXISTS complaint_status_history (
    history_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    old_status VARCHAR(20) NULL COMMENT 'NULL for the initial FILED entry',
    new_status VARCHAR(20) NOT NULL,
    actor_role VARCHAR(50) NOT NULL,
    actor_id BIGINT NULL COMMENT 'NULL for SYSTEM',
    reason TEXT NULL,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (complaint_id) REFERENCES complaints(complaint_id) ON DELETE CASCADE,
    INDEX idx_complaint_created (complaint_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "resolution_proofs", ddl: `
CREATE TABLE IF NOT EXISTS resolution_proofs (
    proof_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    staff_id BIGINT NOT NULL,
    evidence_ref VARCHAR(512) NOT NULL COMMENT 'Pointer into evidence storage',
    fingerprint CHAR(64) NOT NULL COMMENT 'SHA-256 of ref, staff and capture time',
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verified_by BIGINT NULL,
    captured_at DATETIME(6) NOT NULL,
    FOREIGN KEY (complaint_id) REFERENCES complaints(complaint_id) ON DELETE CASCADE,
    INDEX idx_complaint_id (complaint_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	// pending_key is non-NULL only for an undecided dispute, so the unique index
	// allows at most one pending dispute per complaint.
	{name: "citizen_signoffs", ddl: `
CREATE TABLE IF NOT EXISTS citizen_signoffs (
    signoff_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    citizen_id BIGINT NOT NULL,
    is_accepted BOOLEAN NOT NULL,
    rating TINYINT NULL,
    feedback TEXT NULL,
    dispute_reason TEXT NULL,
    counter_proof_ref VARCHAR(512) NULL,
    dispute_approved BOOLEAN NULL COMMENT 'NULL = pending, TRUE = approved, FALSE = rejected',
    dispute_reviewed_by BIGINT NULL,
    dispute_reviewed_at DATETIME NULL,
    rejection_reason TEXT NULL,
    created_at DATETIME NOT NULL,
    pending_key BIGINT AS (IF(is_accepted = 0 AND dispute_approved IS NULL, complaint_id, NULL)) STORED,
    FOREIGN KEY (complaint_id) REFERENCES complaints(complaint_id) ON DELETE CASCADE,
    UNIQUE KEY uq_pending_dispute (pending_key),
    INDEX idx_complaint_id (complaint_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "escalation_events", ddl: `
CREATE TABLE IF NOT EXISTS escalation_events (
    event_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    escalation_level INT NOT NULL,
    previous_level INT NOT NULL,
    escalated_at DATETIME NOT NULL,
    escalated_to_role VARCHAR(50) NOT NULL,
    reason TEXT NOT NULL,
    days_overdue INT NOT NULL,
    FOREIGN KEY (complaint_id) REFERENCES complaints(complaint_id) ON DELETE CASCADE,
    INDEX idx_complaint_id (complaint_id),
    INDEX idx_escalated_at (escalated_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "audit_log", ddl: `
CREATE TABLE IF NOT EXISTS audit_log (
    audit_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    entity_type VARCHAR(50) NOT NULL,
    entity_id BIGINT NOT NULL,
    action VARCHAR(100) NOT NULL,
    actor_role VARCHAR(50) NOT NULL,
    actor_id BIGINT NULL,
    old_values JSON NULL,
    new_values JSON NULL,
    reason TEXT NULL,
    created_at DATETIME NOT NULL,
    INDEX idx_entity (entity_type, entity_id),
    INDEX idx_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "notifications", ddl: `
CREATE TABLE IF NOT EXISTS notifications (
    notification_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    complaint_id BIGINT NOT NULL,
    kind VARCHAR(50) NOT NULL,
    channel VARCHAR(20) NOT NULL,
    recipient_id BIGINT NULL,
    recipient_role VARCHAR(50) NOT NULL,
    subject VARCHAR(500) NOT NULL,
    body TEXT NOT NULL,
    dedup_key VARCHAR(255) NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    retry_count INT NOT NULL DEFAULT 0,
    max_retries INT NOT NULL DEFAULT 3,
    next_retry_at DATETIME NULL,
    sent_at DATETIME NULL,
    error_message TEXT NULL,
    created_at DATETIME NOT NULL,
    INDEX idx_dedup_created (dedup_key, created_at),
    INDEX idx_status_retry (status, next_retry_at),
    INDEX idx_complaint_id (complaint_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},

	{name: "citizen_rewards", ddl: `
CREATE TABLE IF NOT EXISTS citizen_rewards (
    reward_id BIGINT PRIMARY KEY AUTO_INCREMENT,
    citizen_id BIGINT NOT NULL,
    complaint_id BIGINT NOT NULL,
    points INT NOT NULL,
    reason VARCHAR(100) NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE KEY uq_reward_once (citizen_id, complaint_id, reason),
    INDEX idx_citizen_id (citizen_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
}

// TableNames lists the managed tables in creation order.
func TableNames() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names
}

// InitializeDatabase creates missing tables in dependency order, then adds any
// columns older deployments lack. Existing tables and data are never dropped.
func InitializeDatabase(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, t := range tables {
		exists, err := tableExists(ctx, db, t.name)
		if err != nil {
			return fmt.Errorf("failed to check if table %s exists: %w", t.name, err)
		}
		if exists {
			logger.Debug("table exists", zap.String("table", t.name))
			continue
		}
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		logger.Info("created table", zap.String("table", t.name))
	}
	return EnsureColumns(ctx, db, logger)
}
