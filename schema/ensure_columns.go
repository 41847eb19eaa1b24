// Package schema: add columns introduced after a table was first created (auto-migration at startup).

package schema

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type columnUpgrade struct {
	table  string
	column string
	spec   string
}

// upgrades are applied only when the column is missing. MySQL has no
// ADD COLUMN IF NOT EXISTS, so existence is checked first.
var upgrades = []columnUpgrade{
	{table: "complaints", column: "version", spec: "BIGINT NOT NULL DEFAULT 1 COMMENT 'Optimistic concurrency token'"},
	{table: "complaints", column: "escalation_level", spec: "INT NOT NULL DEFAULT 0"},
	{table: "complaint_status_history", column: "actor_role", spec: "VARCHAR(50) NOT NULL DEFAULT 'SYSTEM'"},
	{table: "complaint_status_history", column: "actor_id", spec: "BIGINT NULL COMMENT 'NULL for SYSTEM'"},
	{table: "complaint_status_history", column: "reason", spec: "TEXT NULL"},
	{table: "notifications", column: "dedup_key", spec: "VARCHAR(255) NULL"},
}

// EnsureColumns adds any missing upgrade columns. Does not drop or alter existing ones.
func EnsureColumns(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, u := range upgrades {
		if err := ensureColumn(ctx, db, u, logger); err != nil {
			return err
		}
	}
	logger.Info("schema check passed")
	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, u columnUpgrade, logger *zap.Logger) error {
	exists, err := columnExists(ctx, db, u.table, u.column)
	if err != nil {
		return fmt.Errorf("failed to check column %s.%s: %w", u.table, u.column, err)
	}
	if exists {
		return nil
	}
	query := "ALTER TABLE " + u.table + " ADD COLUMN " + u.column + " " + u.spec
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", u.table, u.column, err)
	}
	logger.Info("added missing column", zap.String("table", u.table), zap.String("column", u.column))
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
