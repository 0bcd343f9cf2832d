package cmd

import (
	"context"
	"fmt"
	"time"

	"ChromaFM/config"
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

// app holds the offline stack shared by the scan, watch and playlist
// commands. The HTTP server wires up its own copy in server.Start.
type app struct {
	cfg       *config.Config
	tracks    repository.TrackRepository
	features  repository.FeatureRepository
	scanner   *scanner.Scanner
	generator *playlist.Generator
}

// newApp connects to the database, loads the similarity indexes and
// returns the wired services plus a cleanup function.
func newApp() (*app, func(), error) {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := db.ConnectDB(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.InitDB(); err != nil {
		db.DB.Close()
		return nil, nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := db.ConnectGormDB(cfg); err != nil {
		db.DB.Close()
		return nil, nil, fmt.Errorf("failed to connect GORM: %w", err)
	}
	if err := db.AutoMigrateModels(&model.ScanHistory{}); err != nil {
		db.CloseGormDB()
		db.DB.Close()
		return nil, nil, fmt.Errorf("failed to migrate scan history schema: %w", err)
	}

	cleanup := func() {
		db.CloseGormDB()
		db.DB.Close()
		logger.Sync()
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	featureRepo := repository.NewMySQLFeatureRepository(db.DB, cfg.TimbreDim)
	historyRepo := repository.NewGormScanHistoryRepository(db.GormDB)

	indexes := similarity.NewIndexSet(cfg.TimbreDim)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := indexes.Bootstrap(ctx, featureRepo); err != nil {
		cleanup()
		return nil, nil, err
	}

	extractor := feature.NewCommandExtractor(cfg.AnalyzerPath, cfg.TimbreDim)
	pipe := pipeline.New(featureRepo, indexes, extractor)
	fuser := similarity.NewFuser(indexes, featureRepo)

	scn := scanner.NewScanner(trackRepo, historyRepo, pipe, cfg.AudioExtensions)
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		scn.SetArchiver(storage.ArchiveAudio)
	}

	return &app{
		cfg:       cfg,
		tracks:    trackRepo,
		features:  featureRepo,
		scanner:   scn,
		generator: playlist.NewGenerator(fuser, featureRepo),
	}, cleanup, nil
}

// pipelineOptions builds extraction options that print progress to the
// terminal.
func (a *app) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		BatchSize: a.cfg.BatchSize,
		Workers:   a.cfg.WorkerCount,
		Progress: func(current, total int, message string) {
			fmt.Printf("[%d/%d] %s\n", current, total, message)
		},
	}
}
