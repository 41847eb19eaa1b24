package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"civicflow/config"
	"civicflow/memstore"
	"civicflow/models"
	"civicflow/notification"
	"civicflow/repository"
	"civicflow/service"
	"civicflow/worker"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// app holds the wired services for one process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	telemetry *service.Telemetry

	dispatcher    *worker.Dispatcher
	notifications *service.NotificationService
	lifecycle     *service.LifecycleService
	disputes      *service.DisputeService
	proofs        *service.ProofService
	signoffs      *service.SignoffService
	escalations   *service.EscalationService
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func mysqlStores(db *sql.DB) service.Stores {
	return service.Stores{
		Tx:            repository.NewTxManager(db),
		Complaints:    repository.NewComplaintRepository(db),
		Proofs:        repository.NewProofRepository(db),
		Signoffs:      repository.NewSignoffRepository(db),
		Escalations:   repository.NewEscalationRepository(db),
		Audit:         repository.NewAuditRepository(db),
		Categories:    repository.NewCategoryRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Rewards:       repository.NewRewardRepository(db),
	}
}

func memoryStores(m *memstore.Store) service.Stores {
	return service.Stores{
		Tx:            m,
		Complaints:    m,
		Proofs:        m,
		Signoffs:      m,
		Escalations:   m,
		Audit:         m,
		Categories:    m,
		Notifications: m,
		Rewards:       m,
	}
}

// roleMailboxResolver addresses email to the configured shared mailbox of the
// recipient's role. Individual citizen addresses live outside this service.
func roleMailboxResolver(mailboxes map[string]string) notification.AddressResolver {
	byRole := make(map[models.Role]string, len(mailboxes))
	for role, addr := range mailboxes {
		byRole[models.Role(strings.ToUpper(role))] = addr
	}
	return func(n *models.Notification) string {
		return byRole[n.RecipientRole]
	}
}

// buildApp wires stores, services and the side-effect dispatcher. db nil selects the
// in-memory store.
func buildApp(cfg *config.Config, logger *zap.Logger, db *sql.DB) (*app, error) {
	policy, err := service.LoadEscalationPolicy(cfg.Escalation.PolicyFile)
	if err != nil {
		return nil, err
	}

	var stores service.Stores
	if db != nil {
		stores = mysqlStores(db)
	} else {
		stores = memoryStores(memstore.New())
	}

	telemetry := service.NewTelemetry()
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		QueueSize:      cfg.Dispatcher.QueueSize,
		Workers:        cfg.Dispatcher.Workers,
		JobTimeout:     cfg.Dispatcher.JobTimeout,
		MaxElapsedTime: cfg.Dispatcher.MaxElapsedTime,
	}, telemetry, logger.Named("dispatcher"))

	senders := []notification.Sender{
		notification.NewInAppSender(logger.Named("in_app")),
		notification.NewEmailSender(notification.EmailConfig{
			SendGridAPIKey: cfg.Notification.SendGridAPIKey,
			FromEmail:      cfg.Notification.FromEmail,
			FromName:       cfg.Notification.FromName,
			ShadowAddress:  cfg.Notification.ShadowAddress,
		}, roleMailboxResolver(cfg.Notification.RoleMailboxes), logger.Named("email")),
		notification.NewSMSSender(logger.Named("sms")),
	}
	notifyCfg := models.DefaultNotificationConfig()
	notifyCfg.DefaultChannel = models.NotificationChannel(cfg.Notification.Channel)
	notifications := service.NewNotificationService(stores.Tx, stores.Notifications, senders, notifyCfg, logger.Named("notification"))

	audit := service.NewAuditService(stores.Audit)
	rewards := service.NewRewardService(stores.Rewards, cfg.Rewards.PointsPerClosure, logger.Named("rewards"))

	lifecycleSvc := service.NewLifecycleService(stores, audit, notifications, rewards, dispatcher, telemetry, logger.Named("lifecycle"))
	lifecycleSvc.SetDedupWindow(cfg.Escalation.DedupWindow)
	disputes := service.NewDisputeService(stores, audit, notifications, dispatcher, telemetry, logger.Named("dispute"))
	escalations := service.NewEscalationService(stores, policy, audit, notifications, dispatcher, telemetry, logger.Named("escalation"),
		service.EscalationConfig{
			BatchSize:    cfg.Escalation.BatchSize,
			SweepTimeout: cfg.Escalation.SweepTimeout,
			Workers:      cfg.Escalation.Workers,
			DedupWindow:  cfg.Escalation.DedupWindow,
		})

	return &app{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		telemetry:     telemetry,
		dispatcher:    dispatcher,
		notifications: notifications,
		lifecycle:     lifecycleSvc,
		disputes:      disputes,
		proofs:        service.NewProofService(stores, audit, logger.Named("proof")),
		signoffs:      service.NewSignoffService(stores, lifecycleSvc, disputes, logger.Named("signoff")),
		escalations:   escalations,
	}, nil
}

func (a *app) ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}
