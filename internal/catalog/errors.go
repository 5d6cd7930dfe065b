package catalog

import (
	"context"
	"errors"
)

var (
	// ErrEndpointUnreachable marks a remote browser session that could not be opened.
	// It fails the owning worker's shard.
	ErrEndpointUnreachable = errors.New("browser endpoint unreachable")
	// ErrPageLoad marks a single page that could not be loaded or snapshotted.
	ErrPageLoad = errors.New("page load failed")
	// ErrPageCount marks a pagination control whose page count could not be read.
	ErrPageCount = errors.New("page count unavailable")
	// ErrRunInProgress is returned when a run is requested while another is active.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRunNotFound is returned when a run summary does not exist.
	ErrRunNotFound = errors.New("run not found")
)

// IsFatal reports whether err must end the owning worker's shard rather than
// a single page, category or link: the endpoint is gone or the run was cancelled.
func IsFatal(ctx context.Context, err error) bool {
	return errors.Is(err, ErrEndpointUnreachable) || ctx.Err() != nil
}
