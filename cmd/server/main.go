package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/audio"
	"github.com/DaniUTP/remotion-backend/config"
	"github.com/DaniUTP/remotion-backend/database"
	"github.com/DaniUTP/remotion-backend/handlers"
	"github.com/DaniUTP/remotion-backend/jobs"
	"github.com/DaniUTP/remotion-backend/middleware"
	"github.com/DaniUTP/remotion-backend/pipeline"
	"github.com/DaniUTP/remotion-backend/render"
	"github.com/DaniUTP/remotion-backend/service"
	"github.com/DaniUTP/remotion-backend/upload"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Render backend starting", zap.String("port", cfg.Port))

	db, err := database.Connect(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer db.Close()

	store := jobs.NewStore(db, jobs.StoreConfig{
		MaxJobs: cfg.MaxJobsStored,
		MaxAge:  time.Duration(cfg.MaxJobAgeHours) * time.Hour,
	}, logger)

	reaper := jobs.NewReaper(store, time.Duration(cfg.CleanupIntervalMinutes)*time.Minute, logger)
	store.OnNearCapacity(reaper.Kick)

	uploader, err := upload.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, logger)
	if err != nil {
		logger.Fatal("Failed to init cloudinary", zap.Error(err))
	}

	renderer := render.NewRemotion(cfg.ServeURL, cfg.CompositionID, cfg.RenderConcurrency, logger)
	runner := pipeline.NewRunner(store, renderer, uploader,
		cfg.RenderConcurrency,
		time.Duration(cfg.RenderTimeoutMinutes)*time.Minute,
		logger,
	)

	jobService := service.NewJobService(store, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reaper.Run(ctx)

	jobHandler := handlers.NewJobHandler(jobService, logger)
	uploadHandler := handlers.NewUploadHandler(uploader, cfg.MaxUploadSize, logger)
	audioHandler := handlers.NewAudioHandler(audio.NewBuilder(cfg.VoicesDir, cfg.ImageBaseURL), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/render-video", jobHandler.Render)
	mux.HandleFunc("/api/render-status/", jobHandler.Status)
	mux.HandleFunc("/api/jobs", jobHandler.Jobs)
	mux.HandleFunc("/api/jobs-stats", jobHandler.JobsStats)
	mux.HandleFunc("/api/upload", uploadHandler.Upload)
	mux.HandleFunc("/api/generate-audios", audioHandler.Generate)
	mux.Handle("/voices/", http.StripPrefix("/voices/", http.FileServer(http.Dir(cfg.VoicesDir))))
	mux.Handle("/app/", http.StripPrefix("/app/", http.FileServer(http.Dir(cfg.ClientDir))))
	mux.Handle("/", http.FileServer(http.Dir(cfg.BuildDir)))

	handler := middleware.TraceID(
		middleware.CORS(cfg.AllowedOrigins)(
			middleware.Logging(logger)(
				middleware.Recovery(logger)(mux),
			),
		),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}

	// Let in-flight pipelines write their terminal states before exiting.
	runner.Wait()
	logger.Info("Server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
