package playlist

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"ChromaFM/core/feature"
	"ChromaFM/core/similarity"
	"ChromaFM/logger"
	"ChromaFM/model"
	"ChromaFM/repository"
)

// walkSearchWidth is the candidate pool size for interpolation walk steps.
// Directional walks start from the same width and widen early steps up to
// double it, narrowing as they approach the destination.
const walkSearchWidth = 50

// WalkMode selects how an interpolation walk builds its per-step query.
type WalkMode int

const (
	// WalkLinear interpolates every query between the fixed start and
	// destination features, ignoring which tracks were actually picked.
	WalkLinear WalkMode = iota
	// WalkGradient re-anchors each query at the most recently placed
	// track, so the path bends toward what the library actually contains.
	WalkGradient
)

func (m WalkMode) String() string {
	switch m {
	case WalkLinear:
		return "linear"
	case WalkGradient:
		return "gradient"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Generator builds playlists as ordered track ID lists on top of fused
// similarity ranking.
type Generator struct {
	fuser *similarity.Fuser
	repo  repository.FeatureRepository
}

func NewGenerator(fuser *similarity.Fuser, repo repository.FeatureRepository) *Generator {
	return &Generator{fuser: fuser, repo: repo}
}

// ResolvePaths maps file paths to track IDs, preserving order. Any path
// unknown to the library fails the whole call.
func (g *Generator) ResolvePaths(ctx context.Context, paths []string) ([]int64, error) {
	idByPath, err := g.repo.ResolveIDs(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist seed paths: %w", err)
	}
	ids := make([]int64, 0, len(paths))
	for _, path := range paths {
		id, ok := idByPath[path]
		if !ok {
			return nil, &feature.ErrUnresolvedTrack{Path: path}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Fanout returns the seed track followed by its k nearest neighbors.
func (g *Generator) Fanout(ctx context.Context, trackID int64, k int) ([]int64, error) {
	if k <= 0 {
		return nil, similarity.ErrInvalidK
	}
	candidates, err := g.fuser.RankByID(ctx, trackID, k+1)
	if err != nil {
		return nil, err
	}
	result := make([]int64, 0, k+1)
	result = append(result, trackID)
	for _, c := range candidates {
		if c.ID == trackID {
			continue
		}
		result = append(result, c.ID)
		if len(result) == k+1 {
			break
		}
	}
	return result, nil
}

// InterpolationWalk builds a playlist of n intermediate tracks between a
// start and a destination track. Each step ranks the library against a
// query interpolated toward the destination and places the best track not
// already in the playlist. A step with no unused candidates is skipped
// without advancing the anchor, so the result can come up short. The
// destination is never picked mid-walk and closes the playlist exactly
// once, so no track ever immediately repeats.
func (g *Generator) InterpolationWalk(ctx context.Context, startID, destID int64, n int, mode WalkMode) ([]int64, error) {
	if n <= 0 {
		return nil, similarity.ErrInvalidK
	}
	start, err := g.loadComplete(ctx, startID)
	if err != nil {
		return nil, err
	}
	dest, err := g.loadComplete(ctx, destID)
	if err != nil {
		return nil, err
	}

	result := make([]int64, 0, n+2)
	result = append(result, startID)
	placed := map[int64]struct{}{startID: {}, destID: {}}

	anchor := start
	for s := 1; s <= n; s++ {
		alpha := float64(s) / float64(n+1)
		from := start
		if mode == WalkGradient {
			from = anchor
		}
		q := &similarity.Query{
			Chroma: feature.Lerp(from.Chroma, dest.Chroma, alpha),
			Timbre: feature.Lerp(from.Timbre, dest.Timbre, alpha),
			Tempo:  anchor.Tempo,
		}
		picked, fv, err := g.pickUnused(ctx, q, walkSearchWidth, placed)
		if err != nil {
			return nil, err
		}
		if fv == nil {
			logger.Warn("interpolation walk step exhausted",
				logger.Int("step", s),
				logger.String("mode", mode.String()),
				logger.ErrorField(ErrNoCandidates{Step: s, Width: walkSearchWidth}))
			continue
		}
		result = append(result, picked)
		placed[picked] = struct{}{}
		anchor = fv
	}

	result = append(result, destID)
	return result, nil
}

// DirectionalWalk builds a playlist by stepping the current position a
// fixed fraction of the start-to-destination distance toward the
// destination in each feature space, then placing the best unused track
// near that position. The search pool narrows as the walk progresses. A
// step that finds nothing retries once at double width; if that also
// fails the walk truncates. The destination closes the playlist and is
// never picked mid-walk.
func (g *Generator) DirectionalWalk(ctx context.Context, startID, destID int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, similarity.ErrInvalidK
	}
	start, err := g.loadComplete(ctx, startID)
	if err != nil {
		return nil, err
	}
	dest, err := g.loadComplete(ctx, destID)
	if err != nil {
		return nil, err
	}

	chromaStep := floats.Distance(start.Chroma, dest.Chroma, 2) / float64(n)
	timbreStep := floats.Distance(start.Timbre, dest.Timbre, 2) / float64(n)

	result := make([]int64, 0, n+2)
	result = append(result, startID)
	excluded := map[int64]struct{}{startID: {}, destID: {}}

	pos := start
	for s := 1; s <= n; s++ {
		progress := float64(s) / float64(n+1)
		width := int(walkSearchWidth + walkSearchWidth*(1-progress))
		q := &similarity.Query{
			Chroma: feature.StepToward(pos.Chroma, dest.Chroma, chromaStep),
			Timbre: feature.StepToward(pos.Timbre, dest.Timbre, timbreStep),
			Tempo:  pos.Tempo,
		}

		picked, fv, err := g.pickUnused(ctx, q, width, excluded)
		if err != nil {
			return nil, err
		}
		if fv == nil {
			picked, fv, err = g.pickUnused(ctx, q, 2*width, excluded)
			if err != nil {
				return nil, err
			}
		}
		if fv == nil {
			logger.Warn("directional walk truncated",
				logger.Int("step", s),
				logger.ErrorField(ErrNoCandidates{Step: s, Width: 2 * width}))
			break
		}

		result = append(result, picked)
		excluded[picked] = struct{}{}
		pos = fv
	}

	result = append(result, destID)
	return result, nil
}

// Stitch chains directional walks through a sequence of waypoint tracks,
// joining the segments on their shared endpoints.
func (g *Generator) Stitch(ctx context.Context, waypoints []int64, n int) ([]int64, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("stitch needs at least two waypoints, got %d", len(waypoints))
	}
	var result []int64
	for i := 0; i+1 < len(waypoints); i++ {
		segment, err := g.DirectionalWalk(ctx, waypoints[i], waypoints[i+1], n)
		if err != nil {
			return nil, fmt.Errorf("failed to walk segment %d: %w", i, err)
		}
		if i == 0 {
			result = append(result, segment...)
		} else {
			result = append(result, segment[1:]...)
		}
	}
	return result, nil
}

// Union interleaves the fanouts of several seed tracks into one playlist,
// keeping each track's first appearance only.
func (g *Generator) Union(ctx context.Context, trackIDs []int64, k int) ([]int64, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("union needs at least one seed track")
	}
	var result []int64
	seen := make(map[int64]struct{})
	for _, id := range trackIDs {
		fanned, err := g.Fanout(ctx, id, k)
		if err != nil {
			return nil, err
		}
		for _, fid := range fanned {
			if _, ok := seen[fid]; ok {
				continue
			}
			seen[fid] = struct{}{}
			result = append(result, fid)
		}
	}
	return result, nil
}

// pickUnused ranks the library against q and returns the best candidate
// absent from the exclusion set, along with its stored features. A nil
// vector with nil error means the pool was exhausted.
func (g *Generator) pickUnused(ctx context.Context, q *similarity.Query, width int, excluded map[int64]struct{}) (int64, *model.FeatureVector, error) {
	candidates, err := g.fuser.Rank(ctx, q, width)
	if err != nil {
		return 0, nil, err
	}
	for _, c := range candidates {
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		fv, err := g.repo.GetFeature(ctx, c.ID)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to load features for candidate %d: %w", c.ID, err)
		}
		if fv == nil {
			continue
		}
		return c.ID, fv, nil
	}
	return 0, nil, nil
}

func (g *Generator) loadComplete(ctx context.Context, trackID int64) (*model.FeatureVector, error) {
	fv, err := g.repo.GetFeature(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load features for track %d: %w", trackID, err)
	}
	if fv == nil || !fv.Complete(g.timbreDim()) {
		return nil, &feature.ErrFeaturesNotFound{TrackID: trackID}
	}
	return fv, nil
}

func (g *Generator) timbreDim() int {
	return g.fuser.TimbreDim()
}
