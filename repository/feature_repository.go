package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"ChromaFM/logger"
	"ChromaFM/model"
)

// FeatureRepository persists and retrieves feature vectors keyed by track ID.
// It is the only way the profiling core touches durable storage.
type FeatureRepository interface {
	// ResolveIDs maps file paths to track IDs. Paths with no track row are
	// simply absent from the result.
	ResolveIDs(ctx context.Context, paths []string) (map[string]int64, error)
	// MissingVsComplete partitions ids into those without a complete feature
	// vector and those with one.
	MissingVsComplete(ctx context.Context, ids []int64) (missing, complete map[int64]struct{}, err error)
	// UpsertBatch writes all given vectors in one transaction and returns the
	// set of track IDs whose write succeeded.
	UpsertBatch(ctx context.Context, features map[int64]*model.FeatureVector) (map[int64]struct{}, error)
	// GetFeature returns the stored vector for id, or nil when absent.
	GetFeature(ctx context.Context, id int64) (*model.FeatureVector, error)
	GetFeatures(ctx context.Context, ids []int64) (map[int64]*model.FeatureVector, error)
	// GetAllFeatures returns every stored vector, complete or not. Used for
	// index bootstrap; the caller filters on completeness.
	GetAllFeatures(ctx context.Context) (map[int64]*model.FeatureVector, error)
	TrackPathOf(ctx context.Context, id int64) (string, error)
}

// mysqlFeatureRepository implements FeatureRepository for MySQL.
type mysqlFeatureRepository struct {
	DB        *sql.DB
	timbreDim int
}

// NewMySQLFeatureRepository creates a new instance of mysqlFeatureRepository.
// timbreDim is the deployment's fixed timbre embedding dimension.
func NewMySQLFeatureRepository(db *sql.DB, timbreDim int) FeatureRepository {
	return &mysqlFeatureRepository{DB: db, timbreDim: timbreDim}
}

func (r *mysqlFeatureRepository) ResolveIDs(ctx context.Context, paths []string) (map[string]int64, error) {
	if len(paths) == 0 {
		return map[string]int64{}, nil
	}

	placeholders := strings.Repeat("?,", len(paths))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(paths))
	for i, p := range paths {
		args[i] = p
	}

	query := fmt.Sprintf("SELECT id, file_path FROM tracks WHERE file_path IN (%s)", placeholders)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track ids: %w", err)
	}
	defer rows.Close()

	resolved := make(map[string]int64, len(paths))
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("failed to scan track id row: %w", err)
		}
		resolved[path] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ResolveIDs: %w", err)
	}
	return resolved, nil
}

func (r *mysqlFeatureRepository) MissingVsComplete(ctx context.Context, ids []int64) (map[int64]struct{}, map[int64]struct{}, error) {
	missing := make(map[int64]struct{}, len(ids))
	complete := make(map[int64]struct{})
	if len(ids) == 0 {
		return missing, complete, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT track_id, LENGTH(chroma), tempo, IFNULL(LENGTH(timbre), 0) FROM track_features WHERE track_id IN (%s)",
		placeholders)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query feature completeness: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var chromaLen, timbreLen int
		var tempo float64
		if err := rows.Scan(&id, &chromaLen, &tempo, &timbreLen); err != nil {
			return nil, nil, fmt.Errorf("failed to scan completeness row: %w", err)
		}
		if chromaLen == 4*model.ChromaDim && tempo > 0 && timbreLen == 4*r.timbreDim {
			complete[id] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error during rows iteration in MissingVsComplete: %w", err)
	}

	for _, id := range ids {
		if _, ok := complete[id]; !ok {
			missing[id] = struct{}{}
		}
	}
	return missing, complete, nil
}

func (r *mysqlFeatureRepository) UpsertBatch(ctx context.Context, features map[int64]*model.FeatureVector) (map[int64]struct{}, error) {
	stored := make(map[int64]struct{}, len(features))
	if len(features) == 0 {
		return stored, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin feature upsert transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO track_features (track_id, chroma, tempo, timbre, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE chroma = VALUES(chroma), tempo = VALUES(tempo), timbre = VALUES(timbre), updated_at = VALUES(updated_at)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement for UpsertBatch: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for id, fv := range features {
		if fv == nil || len(fv.Chroma) != model.ChromaDim {
			logger.Warn("skipping malformed feature vector in batch", logger.Int64("trackId", id))
			continue
		}
		var timbre interface{}
		if len(fv.Timbre) > 0 {
			timbre = encodeFloats(fv.Timbre)
		}
		if _, err := stmt.ExecContext(ctx, id, encodeFloats(fv.Chroma), fv.Tempo, timbre, now, now); err != nil {
			return nil, fmt.Errorf("failed to upsert features for track %d: %w", id, err)
		}
		stored[id] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit feature upsert transaction: %w", err)
	}
	return stored, nil
}

func (r *mysqlFeatureRepository) GetFeature(ctx context.Context, id int64) (*model.FeatureVector, error) {
	query := `SELECT chroma, tempo, timbre FROM track_features WHERE track_id = ?`
	row := r.DB.QueryRowContext(ctx, query, id)

	var chromaBuf []byte
	var timbreBuf []byte
	var tempo float64
	err := row.Scan(&chromaBuf, &tempo, &timbreBuf)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No features stored
		}
		return nil, fmt.Errorf("failed to scan features for track %d: %w", id, err)
	}

	chroma, err := decodeFloats(chromaBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chroma for track %d: %w", id, err)
	}
	timbre, err := decodeFloats(timbreBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode timbre for track %d: %w", id, err)
	}
	return &model.FeatureVector{
		Chroma: chroma,
		Tempo:  tempo,
		Timbre: timbre,
	}, nil
}

func (r *mysqlFeatureRepository) GetFeatures(ctx context.Context, ids []int64) (map[int64]*model.FeatureVector, error) {
	result := make(map[int64]*model.FeatureVector, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("SELECT track_id, chroma, tempo, timbre FROM track_features WHERE track_id IN (%s)", placeholders)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	if err := scanFeatureRows(rows, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *mysqlFeatureRepository) GetAllFeatures(ctx context.Context) (map[int64]*model.FeatureVector, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT track_id, chroma, tempo, timbre FROM track_features")
	if err != nil {
		return nil, fmt.Errorf("failed to query all features: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*model.FeatureVector)
	if err := scanFeatureRows(rows, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *mysqlFeatureRepository) TrackPathOf(ctx context.Context, id int64) (string, error) {
	var path string
	err := r.DB.QueryRowContext(ctx, "SELECT file_path FROM tracks WHERE id = ?", id).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no track with id %d", id)
		}
		return "", fmt.Errorf("failed to look up path for track %d: %w", id, err)
	}
	return path, nil
}

func scanFeatureRows(rows *sql.Rows, into map[int64]*model.FeatureVector) error {
	for rows.Next() {
		var id int64
		var chromaBuf, timbreBuf []byte
		var tempo float64
		if err := rows.Scan(&id, &chromaBuf, &tempo, &timbreBuf); err != nil {
			return fmt.Errorf("failed to scan feature row: %w", err)
		}
		chroma, err := decodeFloats(chromaBuf)
		if err != nil {
			return fmt.Errorf("failed to decode chroma for track %d: %w", id, err)
		}
		timbre, err := decodeFloats(timbreBuf)
		if err != nil {
			return fmt.Errorf("failed to decode timbre for track %d: %w", id, err)
		}
		into[id] = &model.FeatureVector{
			Chroma: chroma,
			Tempo:  tempo,
			Timbre: timbre,
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during feature rows iteration: %w", err)
	}
	return nil
}

// encodeFloats serializes a vector as little-endian float32 bytes, the
// fixed layout of the feature blob columns.
func encodeFloats(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(f)))
	}
	return buf
}

// decodeFloats deserializes a little-endian float32 buffer. Returns nil
// for an empty or NULL buffer and an error for a buffer whose length is
// not a whole number of float32 values.
func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt feature blob: %d bytes is not a whole number of float32 values", len(buf))
	}
	v := make([]float64, len(buf)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return v, nil
}
