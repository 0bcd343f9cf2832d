package model

// ChromaDim is the fixed length of the chroma (pitch class) vector.
// Element 0 is the reference pitch class C.
const ChromaDim = 12

// FeatureVector holds the acoustic fingerprint of one track.
//
// Chroma is a 12-element distribution over pitch classes summing to 1.0,
// Tempo is a beats-per-minute estimate, and Timbre is a learned embedding of
// deployment-fixed dimension. Timbre may be absent independently of the
// other two fields; a vector is usable for similarity queries only when it
// is complete.
//
// Vectors are float64 in memory for the math in the walks; the store holds
// them as little-endian float32 buffers.
type FeatureVector struct {
	Chroma []float64 `json:"chroma"`
	Tempo  float64   `json:"tempo"`
	Timbre []float64 `json:"timbre,omitempty"`
}

// Complete reports whether all three feature fields are present.
// timbreDim is the deployment's fixed timbre dimension.
func (f *FeatureVector) Complete(timbreDim int) bool {
	if f == nil {
		return false
	}
	return len(f.Chroma) == ChromaDim && f.Tempo > 0 && len(f.Timbre) == timbreDim
}
