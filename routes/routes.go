package routes

import (
	"context"
	"net/http"

	"civicflow/handler"
	"civicflow/middleware"
	"civicflow/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Services bundles what the route table serves
type Services struct {
	Lifecycle   *service.LifecycleService
	Disputes    *service.DisputeService
	Proofs      *service.ProofService
	Signoffs    *service.SignoffService
	Escalations *service.EscalationService
}

// Options carries auth secrets and the health probe
type Options struct {
	JWTSecret   string
	SystemToken string
	// Ping reports storage health; nil means always healthy.
	Ping   func(ctx context.Context) error
	Logger *zap.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(svc Services, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(logger))

	lifecycleHandler := handler.NewLifecycleHandler(svc.Lifecycle, logger)
	disputeHandler := handler.NewDisputeHandler(svc.Disputes, logger)
	proofHandler := handler.NewProofHandler(svc.Proofs, svc.Lifecycle, logger)
	signoffHandler := handler.NewSignoffHandler(svc.Signoffs, svc.Lifecycle, logger)
	escalationHandler := handler.NewEscalationHandler(svc.Escalations, svc.Lifecycle, logger)
	publicHandler := handler.NewPublicHandler(svc.Lifecycle, logger)

	auth := middleware.NewAuthMiddleware(opts.JWTSecret).RequireActor
	system := middleware.RequireSystemToken(opts.SystemToken)
	withActor := func(h http.HandlerFunc) http.Handler { return auth(h) }
	withSystem := func(h http.HandlerFunc) http.Handler { return system(h) }

	apiV1 := router.PathPrefix("/api/v1").Subrouter()

	// Public case lookup (no auth, no PII)
	apiV1.HandleFunc("/public/complaints/by-number/{complaint_number}", publicHandler.GetPublicComplaintByNumber).Methods("GET")

	complaints := apiV1.PathPrefix("/complaints").Subrouter()

	// Intake hands over classified complaints (system token)
	complaints.Handle("", withSystem(lifecycleHandler.FileComplaint)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}", withActor(lifecycleHandler.GetComplaint)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}/timeline", withActor(lifecycleHandler.Timeline)).Methods("GET")

	// State transitions
	complaints.Handle("/{id:[0-9]+}/state", withActor(lifecycleHandler.TransitionState)).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/allowed-transitions", withActor(lifecycleHandler.AllowedTransitions)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}/start", withActor(lifecycleHandler.Start())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/resolve", withActor(lifecycleHandler.Resolve())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/close", withActor(lifecycleHandler.Close())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/cancel", withActor(lifecycleHandler.Cancel())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/hold", withActor(lifecycleHandler.Hold())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/resume", withActor(lifecycleHandler.Resume())).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/system/start", withSystem(lifecycleHandler.SystemStart)).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/system/close", withSystem(lifecycleHandler.SystemClose)).Methods("PUT")

	// Disputes
	complaints.Handle("/{id:[0-9]+}/dispute", withActor(disputeHandler.SubmitDispute)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/dispute/{signoffId:[0-9]+}/approve", withActor(disputeHandler.ApproveDispute)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/dispute/{signoffId:[0-9]+}/reject", withActor(disputeHandler.RejectDispute)).Methods("POST")
	apiV1.Handle("/disputes/pending", withActor(disputeHandler.PendingDisputes)).Methods("GET")

	// Resolution proof
	complaints.Handle("/{id:[0-9]+}/resolution-proof", withActor(proofHandler.SubmitProof)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/resolution-proof", withActor(proofHandler.ListProofs)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}/resolution-proof/{proofId:[0-9]+}/verify", withActor(proofHandler.VerifyProof)).Methods("PUT")
	complaints.Handle("/{id:[0-9]+}/has-proof", withActor(proofHandler.HasProof)).Methods("GET")

	// Citizen signoff
	complaints.Handle("/{id:[0-9]+}/signoff", withActor(signoffHandler.SubmitSignoff)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/signoffs", withActor(signoffHandler.ListSignoffs)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}/has-signoff", withActor(signoffHandler.HasSignoff)).Methods("GET")

	// Escalation; the sweep worker runs in-process, trigger is for operators (system token)
	complaints.Handle("/{id:[0-9]+}/escalations", withActor(escalationHandler.History)).Methods("GET")
	escalations := apiV1.PathPrefix("/escalations").Subrouter()
	escalations.Handle("/overdue", withActor(escalationHandler.Overdue)).Methods("GET")
	escalations.Handle("/stats", withActor(escalationHandler.Stats)).Methods("GET")
	escalations.Handle("/policy", withActor(escalationHandler.Policy)).Methods("GET")
	escalations.Handle("/trigger", withSystem(escalationHandler.TriggerSweep)).Methods("POST")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ping != nil {
			if err := opts.Ping(r.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
