package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicflow/config"
	"civicflow/routes"
	"civicflow/schema"
	"civicflow/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	envFile    string
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "civicflow",
		Short: "Complaint lifecycle engine",
		Long: `civicflow owns the lifecycle of civic complaints: status transitions with
role and ownership checks, resolution proof and citizen signoff gates, the dispute
workflow and the SLA escalation sweep.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(policyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(envFile, configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the escalation and notification workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, logger, memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "use the in-memory store instead of MySQL (data is lost on exit)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger, memory bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InsecureSecret() {
		logger.Warn("JWT_SECRET is the built-in default; set it before exposing the API")
	}

	a, err := newApp(ctx, cfg, logger, memory)
	if err != nil {
		return err
	}
	if a.db != nil {
		defer a.db.Close()
	}

	a.dispatcher.Start(ctx)
	defer a.dispatcher.Stop()

	escalationWorker := worker.NewEscalationWorker(a.escalations, cfg.Escalation.Interval, logger.Named("escalation_worker"))
	notificationWorker := worker.NewNotificationWorker(a.notifications, cfg.Notification.WorkerInterval, logger.Named("notification_worker"))
	escalationWorker.Start(ctx)
	defer escalationWorker.Stop()
	notificationWorker.Start(ctx)
	defer notificationWorker.Stop()

	router := routes.SetupRoutes(routes.Services{
		Lifecycle:   a.lifecycle,
		Disputes:    a.disputes,
		Proofs:      a.proofs,
		Signoffs:    a.signoffs,
		Escalations: a.escalations,
	}, routes.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		SystemToken: cfg.Auth.SystemToken,
		Ping:        a.ping,
		Logger:      logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.Bool("memory", memory))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newApp opens MySQL (verifying the schema) unless memory is set, then wires services.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, memory bool) (*app, error) {
	if memory {
		return buildApp(cfg, logger, nil)
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateRequiredColumns(ctx, db, nil, logger); err != nil {
		db.Close()
		return nil, err
	}
	a, err := buildApp(cfg, logger, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}
