// Package schema provides startup validation of required DB columns to prevent schema-code mismatch.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RequiredColumn defines a required column for a table.
type RequiredColumn struct {
	Table  string
	Column string
}

// DefaultRequiredColumns are the columns the lifecycle engine cannot run without.
// If any are missing, the server should not start.
var DefaultRequiredColumns = []RequiredColumn{
	{Table: "complaints", Column: "version"},
	{Table: "complaints", Column: "escalation_level"},
	{Table: "complaints", Column: "sla_deadline"},
	{Table: "complaint_status_history", Column: "actor_role"},
	{Table: "complaint_status_history", Column: "actor_id"},
	{Table: "citizen_signoffs", Column: "dispute_approved"},
	{Table: "citizen_signoffs", Column: "pending_key"},
	{Table: "notifications", Column: "dedup_key"},
}

// ValidateRequiredColumns checks that all required columns exist and lists every missing one.
func ValidateRequiredColumns(ctx context.Context, db *sql.DB, required []RequiredColumn, logger *zap.Logger) error {
	if len(required) == 0 {
		required = DefaultRequiredColumns
	}
	var missing []string
	for _, rc := range required {
		exists, err := columnExists(ctx, db, rc.Table, rc.Column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", rc.Table, rc.Column, err)
		}
		if !exists {
			missing = append(missing, rc.Table+"."+rc.Column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns (run `civicflow schema init`): %s", strings.Join(missing, ", "))
	}
	logger.Info("required columns verified")
	return nil
}
