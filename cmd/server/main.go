package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"bankparse/internal/config"
	"bankparse/internal/handler"
	_ "bankparse/internal/parser/claude"
	_ "bankparse/internal/parser/gemini"
	_ "bankparse/internal/parser/openai"
	"bankparse/internal/port"
	"bankparse/internal/repository/postgres"
	"bankparse/internal/router"
	"bankparse/internal/service"
	s3storage "bankparse/internal/storage/s3"
	"bankparse/internal/validator"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	var resultRepo port.ParseResultRepository
	if cfg.DB.Enabled {
		db, err := postgres.NewDB(ctx, &cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		resultRepo = postgres.NewParseResultRepo(db)
	} else {
		log.Printf("database disabled, parse results will not be stored")
	}

	// Initialize storage
	var archive port.ObjectStorage
	if cfg.S3.Bucket != "" {
		archive, err = s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	} else {
		log.Printf("S3 bucket not set, uploaded statements will not be archived")
	}

	// Initialize services
	statementParser := service.NewStatementParser(
		cfg,
		validator.NewPDFValidator(cfg.Upload.MaxBytes()),
		service.NewPageSourceFactory(cfg.PDF),
		service.NewProviderResolver(&cfg.Parser),
	)
	statementSvc := service.NewStatementService(statementParser, resultRepo, archive, cfg)

	// Initialize handlers
	statementH := handler.NewStatementHandler(statementSvc, cfg)
	resultH := handler.NewResultHandler(statementSvc)
	healthH := handler.NewHealthHandler(statementSvc)

	// Setup router
	r := router.Setup(cfg, statementH, resultH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s (default provider %s, strategy %s)",
			cfg.Server.Port, cfg.Parser.DefaultProvider, cfg.Parser.DefaultStrategy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
