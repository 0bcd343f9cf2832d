package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"ChromaFM/cache"
	"ChromaFM/config"
	"ChromaFM/core/auth"
	"ChromaFM/core/feature"
	"ChromaFM/core/pipeline"
	"ChromaFM/core/playlist"
	"ChromaFM/core/scanner"
	"ChromaFM/core/similarity"
	"ChromaFM/db"
	"ChromaFM/logger"
	"ChromaFM/model"
	"ChromaFM/repository"
	"ChromaFM/storage"
)

// Start wires up every dependency and runs the HTTP server until an
// interrupt arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	auth.InitJWT(cfg.JWTSecret)

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.ScanHistory{}); err != nil {
		logger.Fatal("failed to migrate scan history schema", logger.ErrorField(err))
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, playlist caching disabled", logger.ErrorField(err))
		cache.RedisClient = nil
	} else {
		defer cache.CloseRedis()
	}

	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
		}
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	userRepo := repository.NewMySQLUserRepository(db.DB)
	featureRepo := repository.NewMySQLFeatureRepository(db.DB, cfg.TimbreDim)
	historyRepo := repository.NewGormScanHistoryRepository(db.GormDB)

	indexes := similarity.NewIndexSet(cfg.TimbreDim)
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := indexes.Bootstrap(bootCtx, featureRepo); err != nil {
		bootCancel()
		logger.Fatal("failed to bootstrap similarity indexes", logger.ErrorField(err))
	}
	bootCancel()

	extractor := feature.NewCommandExtractor(cfg.AnalyzerPath, cfg.TimbreDim)
	pipe := pipeline.New(featureRepo, indexes, extractor)
	sc := scanner.NewScanner(trackRepo, historyRepo, pipe, cfg.AudioExtensions)
	if storage.Enabled() {
		sc.SetArchiver(storage.ArchiveAudio)
	}
	fuser := similarity.NewFuser(indexes, featureRepo)
	gen := playlist.NewGenerator(fuser, featureRepo)

	apiHandler := NewAPIHandler(cfg, trackRepo, userRepo, historyRepo, sc, gen)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/audio-url", apiHandler.AuthMiddleware(apiHandler.TrackAudioURLHandler)).Methods(http.MethodGet)

	router.HandleFunc("/api/scan", apiHandler.AuthMiddleware(apiHandler.StartScanHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/scan/history", apiHandler.AuthMiddleware(apiHandler.ScanHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/scan/{job_id}", apiHandler.AuthMiddleware(apiHandler.ScanStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/ws/scan/{job_id}", apiHandler.ScanProgressWSHandler)

	router.HandleFunc("/api/playlists/fanout", apiHandler.AuthMiddleware(apiHandler.FanoutPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/walk", apiHandler.AuthMiddleware(apiHandler.WalkPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/directional", apiHandler.AuthMiddleware(apiHandler.DirectionalPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/stitch", apiHandler.AuthMiddleware(apiHandler.StitchPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/union", apiHandler.AuthMiddleware(apiHandler.UnionPlaylistHandler)).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
