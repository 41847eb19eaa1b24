package main

import (
	"fmt"
	"os"
	"strings"

	"civicflow/models"
	"civicflow/schema"
	"civicflow/service"
	"civicflow/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func sweepCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep against the database and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.db.Close()
			a.dispatcher.Start(ctx)
			// Stop drains queued escalation notices before exit.
			defer a.dispatcher.Stop()

			report, err := a.escalations.RunSweep(ctx)
			if err != nil {
				return err
			}
			printSweepReport(report, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every examined complaint")
	return cmd
}

func printSweepReport(report *models.SweepReport, verbose bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgHiGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Printf("Escalation sweep %s (%s)\n",
		report.StartedAt.Format("2006-01-02 15:04:05 MST"), report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	fmt.Printf("  scanned:   %d\n", report.Scanned)
	green.Printf("  escalated: %d\n", report.Escalated)
	fmt.Printf("  skipped:   %d\n", report.Skipped)
	if report.Failed > 0 {
		red.Printf("  failed:    %d\n", report.Failed)
	}
	if report.Truncated {
		yellow.Println("  batch limit reached; remaining complaints are picked up by the next sweep")
	}
	if !verbose {
		return
	}
	for _, r := range report.Results {
		switch {
		case r.Escalated:
			green.Printf("  #%d L%d → L%d (%s, %d days overdue)\n", r.ComplaintID, r.PreviousLevel, r.NewLevel, r.TargetRole, r.DaysOverdue)
		default:
			fmt.Printf("  #%d %s\n", r.ComplaintID, r.Reason)
		}
	}
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the MySQL schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create missing tables and columns (never drops anything)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := schema.InitializeDatabase(ctx, db, logger); err != nil {
				return err
			}
			if err := schema.ValidateRequiredColumns(ctx, db, nil, logger); err != nil {
				return err
			}
			color.New(color.FgHiGreen).Printf("schema ready: %s\n", strings.Join(schema.TableNames(), ", "))
			return nil
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID     int64
		role       string
		department int64
		hours      int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor (development and operations)",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}
			actor := models.ActorContext{UserID: userID, Role: models.Role(strings.ToUpper(role))}
			if department > 0 {
				actor.DepartmentID = &department
			}
			if hours <= 0 {
				hours = cfg.Auth.TokenTTLHours
			}
			token, err := utils.GenerateActorJWT(actor, []byte(cfg.Auth.JWTSecret), hours)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCitizen), "CITIZEN, STAFF, DEPT_HEAD, ADMIN, MUNICIPAL_COMMISSIONER or SUPER_ADMIN")
	cmd.Flags().Int64Var(&department, "department", 0, "department id for staff roles")
	cmd.Flags().IntVar(&hours, "hours", 0, "token lifetime in hours (default from JWT_TTL_HOURS)")
	return cmd
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective escalation policy as YAML",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			policy, err := service.LoadEscalationPolicy(cfg.Escalation.PolicyFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(policy)
		},
	}
}
