// Package domain defines the entities shared by the acquisition pipeline:
// tracked keywords, search jobs, and scraped listing snapshots.
package domain

import "time"

// KeywordStatus tracks the lifecycle of a search keyword.
type KeywordStatus string

const (
	KeywordActive    KeywordStatus = "active"
	KeywordCompleted KeywordStatus = "completed"
	KeywordFailed    KeywordStatus = "failed"
)

// Keyword is a tracked search term. Created at import; status and
// LastSearchedAt are mutated by the orchestrator after a run.
type Keyword struct {
	ID             int64
	Text           string
	Category       string
	Status         KeywordStatus
	LastSearchedAt *time.Time
	CreatedAt      time.Time
}

// JobStatus tracks the state machine of a search job. Transitions are
// monotonic: in_progress moves to completed or failed, never back.
type JobStatus string

const (
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// SearchJob is one orchestration run across a keyword batch. A status of
// "completed" means the loop finished, not that every keyword succeeded;
// callers must inspect Successful/Failed and ErrorLog.
type SearchJob struct {
	ID            int64
	TotalKeywords int
	Processed     int
	Successful    int
	Failed        int
	Status        JobStatus
	StartTime     time.Time
	EndTime       *time.Time
	ExecutionTime time.Duration
	ErrorLog      string
}

// JobUpdate carries a partial mutation of a SearchJob. Nil counter fields
// are left untouched; AppendError is appended to the error log, never
// overwriting earlier entries.
type JobUpdate struct {
	Processed   *int
	Successful  *int
	Failed      *int
	Status      JobStatus
	AppendError string
}

// ListingType classifies how a listing is sold.
type ListingType string

const (
	ListingAuction    ListingType = "auction"
	ListingFixedPrice ListingType = "fixed_price"
	ListingUnknown    ListingType = "unknown"
)

// ListingRecord is one scraped marketplace item snapshot tied to the keyword
// that produced it. ItemID is the only mandatory field; every other field is
// optional because absence on the rendered page is expected, not exceptional.
// Records are immutable once created; repeated scrapes produce distinct
// snapshots rather than updates in place.
type ListingRecord struct {
	ItemID              string
	Title               string
	Price               *float64
	Currency            string
	ShippingPrice       *float64
	SellerName          string
	SellerFeedbackCount *int
	SellerRating        *float64 // 0..1 fraction
	Condition           string
	ListingType         ListingType
	IsBuyItNow          bool
	BidsCount           int
	// AuctionEndTime is computed from the countdown string relative to the
	// wall-clock time at extraction. It drifts by the scraping latency and is
	// an approximation, not the listing's true deadline.
	AuctionEndTime *time.Time
	ItemURL        string
	ImageURL       string
}

// SearchFilters narrows a keyword search. Zero values mean "not set".
type SearchFilters struct {
	CategoryID  string
	Condition   string // "new" or "used"
	ListingType string // "auction", "fixed" or "best_offer"
	MinPrice    float64
	MaxPrice    float64
}
