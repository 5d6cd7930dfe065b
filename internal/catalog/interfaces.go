package catalog

import (
	"context"
	"io"
)

// Browser opens one page per call in a fresh session and releases it before returning.
type Browser interface {
	Open(ctx context.Context, request PageRequest) (Page, error)
}

// LinkStore is the run-scoped, append-only store of discovered product links.
type LinkStore interface {
	Reset(ctx context.Context) error
	Append(ctx context.Context, links ...ProductLink) error
	// LoadDeduplicated returns links in first-seen order with exact duplicates removed.
	LoadDeduplicated(ctx context.Context) ([]ProductLink, error)
}

// ProductSink receives extracted records. Each Append is one atomic row.
type ProductSink interface {
	Reset(ctx context.Context) error
	Append(ctx context.Context, record ProductRecord) error
}

// Snapshotter is implemented by stores that can export their table for archiving.
type Snapshotter interface {
	Snapshot(ctx context.Context) (name string, body io.ReadCloser, err error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RunStore keeps the summaries of finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, summary RunSummary) error
	GetRun(ctx context.Context, runID string) (RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
