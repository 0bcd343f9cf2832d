package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"ChromaFM/logger"
	"ChromaFM/model"
)

// Extractor computes the feature vector of one audio file. Implementations
// must be safe for concurrent use; the pipeline calls Extract from its
// worker pool with no shared state per call.
type Extractor interface {
	Extract(ctx context.Context, path string) (*model.FeatureVector, error)
}

// CommandExtractor shells out to an external analyzer binary that decodes
// the audio and prints a JSON feature document on stdout:
//
//	{"chroma": [12 floats], "tempo": float, "timbre": [D floats]}
//
// The timbre field may be absent when the embedding model is not deployed.
type CommandExtractor struct {
	AnalyzerPath string
	TimbreDim    int
}

// NewCommandExtractor creates an extractor invoking the given analyzer binary.
func NewCommandExtractor(analyzerPath string, timbreDim int) *CommandExtractor {
	return &CommandExtractor{AnalyzerPath: analyzerPath, TimbreDim: timbreDim}
}

type analyzerOutput struct {
	Chroma []float64 `json:"chroma"`
	Tempo  float64   `json:"tempo"`
	Timbre []float64 `json:"timbre"`
}

// Extract runs the analyzer on path and validates its output.
func (e *CommandExtractor) Extract(ctx context.Context, path string) (*model.FeatureVector, error) {
	cmd := exec.CommandContext(ctx, e.AnalyzerPath, path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, NewExtractionFailure(path, fmt.Errorf("%w: %s", err, stderr.String()))
		}
		return nil, NewExtractionFailure(path, err)
	}

	var out analyzerOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, NewExtractionFailure(path, fmt.Errorf("invalid analyzer output: %w", err))
	}

	if len(out.Chroma) != model.ChromaDim {
		return nil, NewExtractionFailure(path, fmt.Errorf("analyzer returned %d chroma bins, want %d", len(out.Chroma), model.ChromaDim))
	}
	if out.Tempo <= 0 {
		return nil, NewExtractionFailure(path, fmt.Errorf("analyzer returned non-positive tempo %v", out.Tempo))
	}
	if len(out.Timbre) > 0 && len(out.Timbre) != e.TimbreDim {
		return nil, NewExtractionFailure(path, fmt.Errorf("analyzer returned %d timbre dims, want %d", len(out.Timbre), e.TimbreDim))
	}

	// The analyzer already emits a distribution; renormalize anyway so a
	// slightly off-sum chroma never poisons downstream distances.
	if !NormalizeDistribution(out.Chroma) {
		return nil, NewExtractionFailure(path, fmt.Errorf("analyzer returned degenerate chroma"))
	}

	fv := &model.FeatureVector{
		Chroma: out.Chroma,
		Tempo:  out.Tempo,
		Timbre: out.Timbre,
	}
	if len(fv.Timbre) == 0 {
		logger.Debug("analyzer produced no timbre embedding", logger.String("path", path))
		fv.Timbre = nil
	}
	return fv, nil
}
