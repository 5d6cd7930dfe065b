// Package catalog defines core types shared across the harvester subsystems.
package catalog

import (
	"time"
)

// CategoryURL names the root of a paginated category listing.
type CategoryURL string

// ProductLink is the fully-qualified URL of one product detail page.
type ProductLink string

// RunState represents the lifecycle state of a harvest run.
type RunState string

// Run states, in the order a run moves through them.
const (
	RunStateIdle        RunState = "idle"
	RunStateDiscovering RunState = "discovering"
	RunStateExtracting  RunState = "extracting"
)

// Browser families understood by the session pool.
const (
	FamilyChromium = "chromium"
	FamilyDirect   = "direct"
)

// Endpoint is a reachable remote-browser entry point.
type Endpoint struct {
	Address string `mapstructure:"address" json:"address"`
	Family  string `mapstructure:"family" json:"family"`
}

// PageRequest captures everything needed to open one page in a session.
type PageRequest struct {
	URL string
	// WaitSelector is the element the caller needs; empty means wait for body only.
	WaitSelector string
	// WaitTimeout bounds the wait for WaitSelector.
	WaitTimeout time.Duration
}

// Page is the rendered snapshot returned by a Browser.
type Page struct {
	URL         string
	FinalURL    string
	Status      int
	HTML        []byte
	WaitMatched bool
	Duration    time.Duration
}

// NutritionTable maps a nutrient name to its value per unit basis,
// e.g. "Energy" -> {"per 100g": "1046kJ", "per serving": "523kJ"}.
type NutritionTable map[string]map[string]string

// ProductRecord is the structured output of one product page. Every field
// except Link is optional.
type ProductRecord struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Price       string         `json:"price"`
	UnitPrice   string         `json:"unit_price"`
	PromoOffer  string         `json:"promo_offer"`
	Rating      *float64       `json:"rating,omitempty"`
	ReviewCount *int           `json:"review_count,omitempty"`
	Breadcrumbs []string       `json:"breadcrumbs"`
	Tags        []string       `json:"tags"`
	Nutrition   NutritionTable `json:"nutrition"`
	ImageURL    string         `json:"image_url"`
	Link        ProductLink    `json:"product_url"`
	ExtractedAt time.Time      `json:"last_updated"`
}

// PhaseSummary tracks counters for one phase of a run.
type PhaseSummary struct {
	Workers      int           `json:"workers"`
	Items        int           `json:"items"`
	PagesOK      int           `json:"pages_ok"`
	PagesFailed  int           `json:"pages_failed"`
	Appended     int           `json:"appended"`
	Skipped      int           `json:"skipped"`
	ShardsFailed int           `json:"shards_failed"`
	Duration     time.Duration `json:"duration"`
}

// Add folds another summary's counters into s.
func (s *PhaseSummary) Add(other PhaseSummary) {
	s.Items += other.Items
	s.PagesOK += other.PagesOK
	s.PagesFailed += other.PagesFailed
	s.Appended += other.Appended
	s.Skipped += other.Skipped
	s.ShardsFailed += other.ShardsFailed
}

// RunStatus is the outcome of a finished run.
type RunStatus string

// Run outcomes. Partial means at least one shard stopped on an unreachable endpoint.
const (
	RunStatusOK       RunStatus = "ok"
	RunStatusPartial  RunStatus = "partial"
	RunStatusCanceled RunStatus = "canceled"
	RunStatusFailed   RunStatus = "failed"
)

// RunSummary is published once a run finishes.
type RunSummary struct {
	RunID       string       `json:"run_id"`
	Status      RunStatus    `json:"status"`
	Started     time.Time    `json:"started_at"`
	Finished    time.Time    `json:"finished_at"`
	Discovery   PhaseSummary `json:"discovery"`
	Extraction  PhaseSummary `json:"extraction"`
	UniqueLinks int          `json:"unique_links"`
	Artifacts   []string     `json:"artifacts,omitempty"`
	ErrorText   string       `json:"error_text,omitempty"`
}
