package main

import (
	"context"

	"mediq/internal/agents"
	mediqconfig "mediq/internal/config"
	"mediq/internal/healthtwin"
	"mediq/internal/httpapi"
	"mediq/internal/ingest"
	"mediq/internal/notify"
	"mediq/pkg/config"
	"mediq/pkg/database"
	"mediq/pkg/llm"
	"mediq/pkg/logging"
	"mediq/pkg/monitoring"
	"mediq/pkg/server"
	"mediq/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("mediq")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting MedIQ (Emergency Decision Support API)")

	cfg := mediqconfig.Load()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("mediq", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("mediq", version.Version, version.GitCommit)

	// Optional baseline database. Without it the twin runs in memory and
	// forgets learned baselines on restart.
	var baselineStore healthtwin.Store = healthtwin.NewMemoryStore()
	var alertStore notify.AlertStore = notify.NewMemoryAlertLog(0)
	if cfg.BaselineDatabaseURL != "" {
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.BaselineDatabaseURL
		db, err := database.Connect(dbConfig, logger)
		if err != nil {
			logger.WithError(err).Warn("Baseline database unavailable - falling back to in-memory stores")
		} else {
			defer func() { _ = db.Close() }()
			if err := database.ApplySchema(context.Background(), db, logger); err != nil {
				logger.WithError(err).Fatal("Failed to apply database schema")
			}
			baselineStore = healthtwin.NewSQLStore(db)
			alertStore = notify.NewSQLAlertStore(db)
			healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
		}
	} else {
		logger.Warn("BASELINE_DATABASE_URL not set - baselines will not survive restarts")
	}

	llmProvider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize LLM provider - realtime escalation uses rule fallback")
		llmProvider = nil
	}

	hub := notify.NewHub(logger)

	var notifiers []notify.Notifier
	emailNotifier := notify.NewEmergencyEmailNotifier(cfg.SMTP, cfg.EmergencyEmail, logger)
	if emailNotifier.IsConfigured() {
		notifiers = append(notifiers, emailNotifier)
	} else {
		logger.Warn("SMTP not configured - emergency email disabled")
	}
	if cfg.SMSGatewayURL != "" {
		notifiers = append(notifiers, notify.NewSMSNotifier(cfg.SMSGatewayURL))
	}
	if cfg.PushGatewayURL != "" {
		notifiers = append(notifiers, notify.NewPushNotifier(cfg.PushGatewayURL))
	}
	notifiers = append(notifiers, notify.NewChatbotNotifier(hub))
	dispatcher := notify.NewDispatcher(logger, notifiers...)

	twin := healthtwin.NewTwin(baselineStore, logger)
	buffers := ingest.NewBuffers(cfg.VitalsBufferSize)
	cooldown := ingest.NewCooldown(cfg.AlertCooldown)

	var assessor ingest.Assessor
	if llmProvider != nil {
		assessor = ingest.NewLLMAssessor(llmProvider, cfg.LLMTimeout)
	}
	ingestor := ingest.NewIngestor(buffers, twin, cooldown, ingest.Options{
		Assessor:   assessor,
		Dispatcher: dispatcher,
		Alerts:     alertStore,
		Hub:        hub,
	}, logger)

	orchestrator := agents.NewDefaultOrchestrator(logger, agents.Params{
		MaxDepth:            cfg.MaxFractalDepth,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	})
	orchestrator.SetProgressSink(hub)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "mediq", healthChecker, metricsCollector)
	api := httpapi.New(orchestrator, httpapi.Options{
		Ingestor: ingestor,
		Buffers:  buffers,
		Twin:     twin,
		Alerts:   alertStore,
		Hub:      hub,
		Metrics:  httpapi.NewMetrics(metricsCollector),
	}, logger)
	api.Register(router)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("mediq", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
