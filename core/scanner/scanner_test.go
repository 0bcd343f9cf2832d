package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChromaFM/core/pipeline"
	"ChromaFM/core/similarity"
	"ChromaFM/model"
)

const testTimbreDim = 2

type fakeTrackRepo struct {
	nextID int64
	byPath map[string]*model.Track
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{byPath: make(map[string]*model.Track)}
}

func (f *fakeTrackRepo) CreateTrack(track *model.Track) (int64, error) {
	f.nextID++
	track.ID = f.nextID
	f.byPath[track.FilePath] = track
	return track.ID, nil
}

func (f *fakeTrackRepo) GetTrackByID(id int64) (*model.Track, error) {
	for _, track := range f.byPath {
		if track.ID == id {
			return track, nil
		}
	}
	return nil, nil
}

func (f *fakeTrackRepo) GetAllTracks() ([]*model.Track, error) {
	out := make([]*model.Track, 0, len(f.byPath))
	for _, track := range f.byPath {
		out = append(out, track)
	}
	return out, nil
}

func (f *fakeTrackRepo) GetTrackByFilePath(filePath string) (*model.Track, error) {
	return f.byPath[filePath], nil
}

func (f *fakeTrackRepo) EnsureTrack(track *model.Track) (int64, error) {
	if existing := f.byPath[track.FilePath]; existing != nil {
		return existing.ID, nil
	}
	return f.CreateTrack(track)
}

type fakeHistoryRepo struct {
	started    []string
	total      int
	successful int
	errs       int
	ended      bool
}

func (f *fakeHistoryRepo) StartScan(directory string) (int64, error) {
	f.started = append(f.started, directory)
	return int64(len(f.started)), nil
}

func (f *fakeHistoryRepo) EndScan(id int64, totalFiles, successfulFiles, errs int) error {
	f.total = totalFiles
	f.successful = successfulFiles
	f.errs = errs
	f.ended = true
	return nil
}

func (f *fakeHistoryRepo) RecentScans(limit int) ([]*model.ScanHistory, error) {
	return nil, nil
}

// featureRepoOverTracks resolves paths through the track repo and stores
// vectors in memory.
type featureRepoOverTracks struct {
	tracks   *fakeTrackRepo
	features map[int64]*model.FeatureVector
}

func (f *featureRepoOverTracks) ResolveIDs(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, p := range paths {
		if track := f.tracks.byPath[p]; track != nil {
			out[p] = track.ID
		}
	}
	return out, nil
}

func (f *featureRepoOverTracks) MissingVsComplete(ctx context.Context, ids []int64) (map[int64]struct{}, map[int64]struct{}, error) {
	missing := make(map[int64]struct{})
	complete := make(map[int64]struct{})
	for _, id := range ids {
		if fv, ok := f.features[id]; ok && fv.Complete(testTimbreDim) {
			complete[id] = struct{}{}
		} else {
			missing[id] = struct{}{}
		}
	}
	return missing, complete, nil
}

func (f *featureRepoOverTracks) UpsertBatch(ctx context.Context, features map[int64]*model.FeatureVector) (map[int64]struct{}, error) {
	stored := make(map[int64]struct{})
	for id, fv := range features {
		f.features[id] = fv
		stored[id] = struct{}{}
	}
	return stored, nil
}

func (f *featureRepoOverTracks) GetFeature(ctx context.Context, id int64) (*model.FeatureVector, error) {
	return f.features[id], nil
}

func (f *featureRepoOverTracks) GetFeatures(ctx context.Context, ids []int64) (map[int64]*model.FeatureVector, error) {
	out := make(map[int64]*model.FeatureVector)
	for _, id := range ids {
		if fv, ok := f.features[id]; ok {
			out[id] = fv
		}
	}
	return out, nil
}

func (f *featureRepoOverTracks) GetAllFeatures(ctx context.Context) (map[int64]*model.FeatureVector, error) {
	return f.features, nil
}

func (f *featureRepoOverTracks) TrackPathOf(ctx context.Context, id int64) (string, error) {
	for p, track := range f.tracks.byPath {
		if track.ID == id {
			return p, nil
		}
	}
	return "", nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, path string) (*model.FeatureVector, error) {
	chroma := make([]float64, model.ChromaDim)
	chroma[0] = 1
	return &model.FeatureVector{Chroma: chroma, Tempo: 120, Timbre: []float64{1, 0}}, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
}

func TestDiscoverFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Artist", "Album", "song2.mp3"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "song1.FLAC"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "notes.txt"))
	writeFile(t, filepath.Join(root, ".sync", "hidden.mp3"))

	s := NewScanner(newFakeTrackRepo(), &fakeHistoryRepo{}, nil, []string{".mp3", ".flac"})

	files, err := s.DiscoverFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "Artist", "Album", "song1.FLAC"),
		filepath.Join(root, "Artist", "Album", "song2.mp3"),
	}, files)
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Artist", "Album", "one.mp3"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "two.mp3"))

	tracks := newFakeTrackRepo()
	history := &fakeHistoryRepo{}
	features := &featureRepoOverTracks{
		tracks:   tracks,
		features: make(map[int64]*model.FeatureVector),
	}
	indexes := similarity.NewIndexSet(testTimbreDim)
	pipe := pipeline.New(features, indexes, stubExtractor{})

	s := NewScanner(tracks, history, pipe, []string{".mp3"})
	report, err := s.Scan(context.Background(), root, pipeline.Options{BatchSize: 1})
	require.NoError(t, err)

	assert.Len(t, report.SuccessfulIDs, 2)
	assert.Empty(t, report.Errors)

	// Track rows carry metadata derived from the directory layout.
	track, err := tracks.GetTrackByFilePath(filepath.Join(root, "Artist", "Album", "one.mp3"))
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, "one", track.Title)
	assert.Equal(t, "Artist", track.Artist)
	assert.Equal(t, "Album", track.Album)

	// The run is recorded in scan history.
	assert.Equal(t, []string{root}, history.started)
	assert.True(t, history.ended)
	assert.Equal(t, 2, history.total)
	assert.Equal(t, 2, history.successful)
	assert.Equal(t, 0, history.errs)

	// Extracted vectors reached the live indexes.
	assert.Equal(t, 2, indexes.Chroma.Len())
	assert.Equal(t, 2, indexes.Timbre.Len())
}

func TestScanArchivesProfiledFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Artist", "Album", "one.mp3"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "two.mp3"))

	tracks := newFakeTrackRepo()
	features := &featureRepoOverTracks{
		tracks:   tracks,
		features: make(map[int64]*model.FeatureVector),
	}
	pipe := pipeline.New(features, similarity.NewIndexSet(testTimbreDim), stubExtractor{})

	var archived []string
	s := NewScanner(tracks, &fakeHistoryRepo{}, pipe, []string{".mp3"})
	s.SetArchiver(func(ctx context.Context, filePath string) error {
		archived = append(archived, filePath)
		return nil
	})

	report, err := s.Scan(context.Background(), root, pipeline.Options{})
	require.NoError(t, err)
	require.Len(t, report.SuccessfulIDs, 2)

	sort.Strings(archived)
	assert.Equal(t, []string{
		filepath.Join(root, "Artist", "Album", "one.mp3"),
		filepath.Join(root, "Artist", "Album", "two.mp3"),
	}, archived)
}
