package playlist

import "fmt"

// ErrNoCandidates reports a walk step where every ranked candidate was
// already placed in the playlist.
type ErrNoCandidates struct {
	Step  int
	Width int
}

func (e ErrNoCandidates) Error() string {
	return fmt.Sprintf("no unused candidates at step %d (searched %d)", e.Step, e.Width)
}
