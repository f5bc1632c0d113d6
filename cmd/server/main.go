package main

import (
	"log"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"triage/config"
	"triage/database"
	"triage/router"

	"triage/pkg/ai"
	"triage/pkg/ai/embedder"
	"triage/pkg/logger"

	authCtrlImp "triage/pkg/auth/controllerImp"
	healthCtrlImp "triage/pkg/health/controllerImp"

	ctiCtrlImp "triage/pkg/cti/controllerImp"
	ctiRepoImp "triage/pkg/cti/repositoryImp"

	ticketCtrlImp "triage/pkg/ticket/controllerImp"
	ticketRepoImp "triage/pkg/ticket/repositoryImp"

	fewshotRepoImp "triage/pkg/fewshot/repositoryImp"
	fewshotSvcImp "triage/pkg/fewshot/serviceImp"

	learningCtrlImp "triage/pkg/learning/controllerImp"
	learningRepoImp "triage/pkg/learning/repositoryImp"
	learningSvcImp "triage/pkg/learning/serviceImp"

	classifySvcImp "triage/pkg/classify/serviceImp"
)

func main() {
	// 1) Config + logger
	cfg := config.Load()
	zlog, err := logger.New(cfg.Mode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	// 2) DB (sqlite) + automigrate
	db := database.OpenSQLite(cfg.DBPath)

	// 3) AI clients. The embedder has no mock; classification degrades
	// gracefully when it is unreachable. The chat client falls back to a mock
	// so the rest of the app works without credentials.
	emb := embedder.New(cfg.EmbEndpoint, cfg.EmbAPIKey, cfg.EmbModel)
	var llm ai.Client
	if cfg.LLMEndpoint != "" && cfg.LLMAPIKey != "" {
		llm = ai.NewOpenAI(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModel)
	} else {
		zlog.Warn("LLM endpoint not configured, using mock client")
		llm = ai.NewMock()
	}

	// 4) Repositories
	ctiRepo := ctiRepoImp.New(db)
	ticketRepo := ticketRepoImp.New(db)
	fewshotRepo := fewshotRepoImp.New(db)
	learningRepo := learningRepoImp.New(db)

	// 5) Services: few-shot store feeds the learning loop, both feed the
	// classifier.
	fewshotSvc := fewshotSvcImp.New(fewshotRepo, ctiRepo, emb, zlog)
	learningSvc := learningSvcImp.New(learningRepo, fewshotSvc, cfg.LearningDataDir, zlog)
	classifySvc := classifySvcImp.New(
		emb, llm,
		ctiRepo, ticketRepo, learningRepo,
		fewshotSvc, learningSvc,
		classifySvcImp.Config{
			SimilarityThreshold:    cfg.SimilarityThreshold,
			MinConfidenceThreshold: cfg.MinConfidenceThreshold,
			DefaultCTIID:           cfg.DefaultCTIID,
		},
		zlog,
	)

	// 6) Controllers
	authCtrl := authCtrlImp.New(db, cfg.JWTSecret)
	healthCtrl := healthCtrlImp.NewHealthCtrl(db)
	ticketCtrl := ticketCtrlImp.New(ticketRepo, ctiRepo, classifySvc, learningSvc, cfg.SuccessConfidenceThreshold, zlog)
	ctiCtrl := ctiCtrlImp.New(ctiRepo, fewshotRepo, classifySvc, fewshotSvc, zlog)
	learningCtrl := learningCtrlImp.New(learningRepo, ctiRepo)

	// 7) Echo + routes
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())
	r := router.New(e, cfg.JWTSecret, authCtrl, ticketCtrl, ctiCtrl, learningCtrl, healthCtrl)

	zlog.Info("listening", "port", cfg.Port, "db", cfg.DBPath)
	if err := r.Start(":" + cfg.Port); err != nil {
		zlog.Fatal("server stopped", "err", err)
	}
}
