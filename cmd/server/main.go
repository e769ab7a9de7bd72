package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plstudy/internal/config"
	"plstudy/internal/database"
	"plstudy/internal/generation"
	"plstudy/internal/handlers"
	"plstudy/internal/repository"
	"plstudy/internal/roster"
	"plstudy/internal/security"
	"plstudy/internal/service"
	"plstudy/internal/study"
)

func main() {
	// Load configuration
	cfg := config.Load()

	studyCfg, err := study.Load(cfg.StudyConfigPath)
	if err != nil {
		log.Fatalf("Failed to load study configuration: %v", err)
	}
	if err := studyCfg.Validate(); err != nil {
		log.Fatalf("Invalid study configuration: %v", err)
	}

	// Connect to MongoDB
	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (database: %s)", cfg.MongoDatabase)

	// Load the approved-IDs list and the assignment roster
	approved, err := roster.LoadApprovedIDs(cfg.ApprovedIDsPath)
	if err != nil {
		log.Fatalf("Failed to load approved IDs: %v", err)
	}
	rows, rowErrs, err := roster.LoadAssignments(cfg.RosterPath)
	if err != nil {
		log.Fatalf("Failed to load assignment roster: %v", err)
	}
	for _, re := range rowErrs {
		log.Printf("Roster row %d skipped: %s", re.Line, re.Reason)
	}
	log.Printf("Loaded %d approved IDs and %d roster rows", len(approved), len(rows))

	// Initialize repositories
	participantRepo := repository.NewParticipantRepository(db)

	// Initialize services
	generator := generation.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.SummaryModel)
	emailService, err := service.NewEmailService(cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.ResearcherEmail)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	enrollService := service.NewEnrollService(participantRepo, studyCfg, approved, rows)
	schedulerService := service.NewSchedulerService(participantRepo, studyCfg)
	pipelineService := service.NewPipelineService(participantRepo, generator, schedulerService, studyCfg, emailService)
	sessionService := service.NewSessionService(participantRepo, schedulerService, studyCfg, cfg.SessionDuration)

	// Initialize handlers
	csrf := security.NewCSRFGenerator(cfg.SessionSecret)
	limiter := security.NewLoginLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	middleware := handlers.NewMiddleware(sessionService, csrf, cfg.SessionSecret)
	authHandler := handlers.NewAuthHandler(enrollService, sessionService, csrf, limiter, cfg.SessionSecret, cfg.SessionDuration)
	studyHandler := handlers.NewStudyHandler(sessionService, schedulerService, pipelineService, studyCfg)

	// Setup routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /logout", authHandler.Logout)

	mux.HandleFunc("GET /study/state", middleware.RequireSession(studyHandler.State))
	mux.HandleFunc("POST /study/unlock", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Unlock)))
	mux.HandleFunc("POST /study/instructions", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Instructions)))
	mux.HandleFunc("POST /study/familiarity", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Familiarity)))
	mux.HandleFunc("POST /study/extra-info", middleware.RequireSession(middleware.RequireCSRF(studyHandler.ExtraInfo)))
	mux.HandleFunc("POST /study/chat", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Chat)))
	mux.HandleFunc("POST /study/generate", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Generate)))
	mux.HandleFunc("POST /study/questions/navigate", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Navigate)))
	mux.HandleFunc("POST /study/questions", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Questions)))
	mux.HandleFunc("POST /study/back", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Back)))
	mux.HandleFunc("POST /study/comparison", middleware.RequireSession(middleware.RequireCSRF(studyHandler.Comparison)))
	mux.HandleFunc("POST /study/batch/report", middleware.RequireSession(middleware.RequireCSRF(studyHandler.BatchReport)))
	mux.HandleFunc("POST /study/batch/confirm", middleware.RequireSession(middleware.RequireCSRF(studyHandler.BatchConfirm)))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // generation calls are slow
		IdleTimeout:  60 * time.Second,
	}

	// Start background session cleanup
	go cleanupExpiredSessions(sessionService)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// cleanupExpiredSessions periodically removes expired sessions
func cleanupExpiredSessions(sessions *service.SessionService) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		sessions.CleanupExpired()
	}
}
