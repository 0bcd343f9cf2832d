package feature

import "fmt"

// ErrUnresolvedTrack indicates a file path with no stored track identity.
type ErrUnresolvedTrack struct {
	Path string
}

func (e *ErrUnresolvedTrack) Error() string {
	return fmt.Sprintf("no track identity for path %q", e.Path)
}

// ErrFeaturesNotFound indicates a track identity with no complete feature
// vector in the store.
type ErrFeaturesNotFound struct {
	TrackID int64
}

func (e *ErrFeaturesNotFound) Error() string {
	return fmt.Sprintf("no complete features stored for track %d", e.TrackID)
}

// ErrExtractionFailure wraps a per-file decode or analysis error. It is
// recorded and does not abort the batch.
//
// The underlying error can be accessed via errors.Unwrap.
type ErrExtractionFailure struct {
	Path  string
	cause error
}

// NewExtractionFailure wraps cause as an extraction failure for path.
func NewExtractionFailure(path string, cause error) *ErrExtractionFailure {
	return &ErrExtractionFailure{Path: path, cause: cause}
}

func (e *ErrExtractionFailure) Error() string {
	return fmt.Sprintf("feature extraction failed for %q: %v", e.Path, e.cause)
}

func (e *ErrExtractionFailure) Unwrap() error { return e.cause }
