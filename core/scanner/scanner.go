package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"ChromaFM/core/pipeline"
	"ChromaFM/logger"
	"ChromaFM/model"
	"ChromaFM/repository"
)

// ArchiveFunc copies one local audio file into durable object storage.
type ArchiveFunc func(ctx context.Context, filePath string) error

// Scanner walks a music library directory, registers every audio file as
// a track, and runs feature extraction over the result. Each run is
// recorded in scan history.
type Scanner struct {
	tracks  repository.TrackRepository
	history repository.ScanHistoryRepository
	pipe    *pipeline.Pipeline
	exts    map[string]struct{}
	archive ArchiveFunc
}

// NewScanner creates a scanner that recognizes the given audio file
// extensions (e.g. ".mp3", ".flac").
func NewScanner(tracks repository.TrackRepository, history repository.ScanHistoryRepository, pipe *pipeline.Pipeline, extensions []string) *Scanner {
	exts := make(map[string]struct{})
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{tracks: tracks, history: history, pipe: pipe, exts: exts}
}

// SetArchiver enables uploading successfully profiled files to object
// storage after each scan. A nil archiver disables archival.
func (s *Scanner) SetArchiver(fn ArchiveFunc) {
	s.archive = fn
}

// DiscoverFiles walks root and returns every audio file path in sorted
// order. Hidden directories are skipped.
func (s *Scanner) DiscoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := s.exts[ext]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk library directory %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Scan discovers the directory's audio files, ensures each one has a
// track row, and runs the extraction pipeline over them. The run is
// bracketed by a scan history record even when extraction fails partway.
func (s *Scanner) Scan(ctx context.Context, dir string, opts pipeline.Options) (*pipeline.Report, error) {
	files, err := s.DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("library scan started",
		logger.String("directory", dir),
		logger.Int("files", len(files)))

	pathByID := make(map[int64]string, len(files))
	for _, path := range files {
		id, err := s.tracks.EnsureTrack(trackFromPath(path))
		if err != nil {
			return nil, fmt.Errorf("failed to register track %s: %w", path, err)
		}
		pathByID[id] = path
	}

	scanID, err := s.history.StartScan(dir)
	if err != nil {
		return nil, err
	}

	report, perr := s.pipe.Extract(ctx, files, opts)
	successful, failed := 0, 0
	if report != nil {
		successful = len(report.SuccessfulIDs)
		failed = len(report.Errors)
	}
	if err := s.history.EndScan(scanID, len(files), successful, failed); err != nil {
		logger.Error("failed to finalize scan history", logger.ErrorField(err))
	}
	if perr != nil {
		return report, perr
	}

	if s.archive != nil && report != nil {
		s.archiveTracks(ctx, report.SuccessfulIDs, pathByID)
	}

	logger.Info("library scan finished",
		logger.String("directory", dir),
		logger.Int("successful", successful),
		logger.Int("errors", failed))
	return report, nil
}

// archiveTracks uploads the successfully profiled files of this run to
// object storage. Upload failures are logged and do not fail the scan.
func (s *Scanner) archiveTracks(ctx context.Context, ids map[int64]struct{}, pathByID map[int64]string) {
	archived := 0
	for id := range ids {
		path, ok := pathByID[id]
		if !ok {
			continue
		}
		if err := s.archive(ctx, path); err != nil {
			logger.Warn("failed to archive audio file",
				logger.String("path", path),
				logger.ErrorField(err))
			continue
		}
		archived++
	}
	if archived > 0 {
		logger.Info("archived scanned audio", logger.Int("files", archived))
	}
}

// trackFromPath derives minimal metadata from the conventional
// artist/album/title directory layout.
func trackFromPath(path string) *model.Track {
	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	album := filepath.Base(filepath.Dir(path))
	artist := filepath.Base(filepath.Dir(filepath.Dir(path)))
	return &model.Track{
		Title:    title,
		Artist:   artist,
		Album:    album,
		FilePath: path,
	}
}
