// Package storage implements the sqlite-backed persistence gateway: tracked
// keywords, job accounting rows and deduplicated listing snapshots.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/monitoring"
	"github.com/valpere/ListingScout/internal/utils"
)

// connParams enables WAL journaling, a busy timeout and foreign keys on every
// connection.
const connParams = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

const schema = `
CREATE TABLE IF NOT EXISTS keywords (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword          TEXT NOT NULL UNIQUE,
	category         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	last_searched_at TIMESTAMP,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS search_jobs (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	total_keywords         INTEGER NOT NULL DEFAULT 0,
	processed_keywords     INTEGER NOT NULL DEFAULT 0,
	successful_keywords    INTEGER NOT NULL DEFAULT 0,
	failed_keywords        INTEGER NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL DEFAULT 'in_progress',
	start_time             TIMESTAMP NOT NULL,
	end_time               TIMESTAMP,
	execution_time_seconds REAL NOT NULL DEFAULT 0,
	error_log              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS listings (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword_id            INTEGER NOT NULL REFERENCES keywords(id),
	item_id               TEXT NOT NULL,
	title                 TEXT NOT NULL DEFAULT '',
	price                 REAL,
	currency              TEXT NOT NULL DEFAULT '',
	shipping_price        REAL,
	seller_name           TEXT NOT NULL DEFAULT '',
	seller_feedback_count INTEGER,
	seller_rating         REAL,
	condition             TEXT NOT NULL DEFAULT '',
	listing_type          TEXT NOT NULL DEFAULT 'unknown',
	is_buy_it_now         INTEGER NOT NULL DEFAULT 0,
	bids_count            INTEGER NOT NULL DEFAULT 0,
	auction_end_time      TIMESTAMP,
	item_url              TEXT NOT NULL DEFAULT '',
	image_url             TEXT NOT NULL DEFAULT '',
	scraped_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (keyword_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_keyword ON listings (keyword_id);
CREATE INDEX IF NOT EXISTS idx_keywords_status ON keywords (status);
`

// Store is the sqlite persistence gateway.
type Store struct {
	db  *sql.DB
	log utils.Logger
}

// Open opens or creates the database file and applies the schema.
func Open(path string, log utils.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+connParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	// sqlite handles one writer; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database %s: %w", path, err)
	}

	s := &Store{db: db, log: log}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// AddKeywords imports search terms, skipping ones already tracked. Returns
// the number of keywords actually added.
func (s *Store) AddKeywords(ctx context.Context, texts []string, category string) (int, error) {
	added := 0
	for _, text := range texts {
		if text == "" {
			continue
		}
		query, args, err := sq.Insert("keywords").
			Options("OR IGNORE").
			Columns("keyword", "category", "status").
			Values(text, category, string(domain.KeywordActive)).
			ToSql()
		if err != nil {
			return added, fmt.Errorf("build keyword insert: %w", err)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return added, fmt.Errorf("insert keyword %q: %w", text, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// ActiveKeywords returns the keywords eligible for the next run.
func (s *Store) ActiveKeywords(ctx context.Context) ([]domain.Keyword, error) {
	query, args, err := sq.Select("id", "keyword", "category", "status", "last_searched_at", "created_at").
		From("keywords").
		Where(sq.Eq{"status": string(domain.KeywordActive)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keyword select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active keywords: %w", err)
	}
	defer rows.Close()

	var keywords []domain.Keyword
	for rows.Next() {
		var kw domain.Keyword
		var lastSearched sql.NullTime
		if err := rows.Scan(&kw.ID, &kw.Text, &kw.Category, &kw.Status, &lastSearched, &kw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		if lastSearched.Valid {
			t := lastSearched.Time
			kw.LastSearchedAt = &t
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// UpdateKeywordStatus moves a keyword through its lifecycle and touches the
// last-searched timestamp.
func (s *Store) UpdateKeywordStatus(ctx context.Context, keywordID int64, status domain.KeywordStatus) error {
	query, args, err := sq.Update("keywords").
		Set("status", string(status)).
		Set("last_searched_at", time.Now().UTC()).
		Where(sq.Eq{"id": keywordID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build keyword update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update keyword %d: %w", keywordID, err)
	}
	return nil
}

// UpsertResults stores the records scraped for one keyword, skipping item
// identifiers already present for that keyword. Re-running a search is
// expected; only new items produce rows. Returns the insert count.
func (s *Store) UpsertResults(ctx context.Context, keywordID int64, records []domain.ListingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, rec := range records {
		query, args, err := sq.Insert("listings").
			Options("OR IGNORE").
			Columns("keyword_id", "item_id", "title", "price", "currency",
				"shipping_price", "seller_name", "seller_feedback_count",
				"seller_rating", "condition", "listing_type", "is_buy_it_now",
				"bids_count", "auction_end_time", "item_url", "image_url").
			Values(keywordID, rec.ItemID, rec.Title, rec.Price, rec.Currency,
				rec.ShippingPrice, rec.SellerName, rec.SellerFeedbackCount,
				rec.SellerRating, rec.Condition, string(rec.ListingType), rec.IsBuyItNow,
				rec.BidsCount, rec.AuctionEndTime, rec.ItemURL, rec.ImageURL).
			ToSql()
		if err != nil {
			return inserted, fmt.Errorf("build listing insert: %w", err)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert listing %s: %w", rec.ItemID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
			monitoring.RecordsInserted.Inc()
		} else {
			monitoring.DedupSkips.Inc()
		}
	}

	s.log.WithFields(map[string]interface{}{
		"keyword_id": keywordID,
		"scraped":    len(records),
		"inserted":   inserted,
	}).Debug("results stored")
	return inserted, nil
}

// ListingCount returns the number of stored listings for one keyword.
func (s *Store) ListingCount(ctx context.Context, keywordID int64) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("listings").
		Where(sq.Eq{"keyword_id": keywordID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build listing count: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listings for keyword %d: %w", keywordID, err)
	}
	return count, nil
}

// StartJob creates a job row in the in_progress state and returns its id.
func (s *Store) StartJob(ctx context.Context, totalKeywords int) (int64, error) {
	query, args, err := sq.Insert("search_jobs").
		Columns("total_keywords", "status", "start_time").
		Values(totalKeywords, string(domain.JobInProgress), time.Now().UTC()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build job insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job id: %w", err)
	}
	return id, nil
}

// UpdateJob applies a partial mutation to a job row. Counter fields left nil
// are untouched; AppendError extends the error log without overwriting
// earlier entries. A terminal status sets end time and execution time and is
// guarded so a finished job is never mutated again.
func (s *Store) UpdateJob(ctx context.Context, jobID int64, update domain.JobUpdate) error {
	b := sq.Update("search_jobs").Where(sq.Eq{"id": jobID})
	touched := false

	if update.Processed != nil {
		b = b.Set("processed_keywords", *update.Processed)
		touched = true
	}
	if update.Successful != nil {
		b = b.Set("successful_keywords", *update.Successful)
		touched = true
	}
	if update.Failed != nil {
		b = b.Set("failed_keywords", *update.Failed)
		touched = true
	}
	if update.AppendError != "" {
		b = b.Set("error_log", sq.Expr(
			"CASE WHEN error_log = '' THEN ? ELSE error_log || char(10) || ? END",
			update.AppendError, update.AppendError))
		touched = true
	}

	if update.Status == domain.JobCompleted || update.Status == domain.JobFailed {
		start, err := s.jobStartTime(ctx, jobID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		b = b.Set("status", string(update.Status)).
			Set("end_time", now).
			Set("execution_time_seconds", now.Sub(start).Seconds()).
			Where(sq.Eq{"status": string(domain.JobInProgress)})
		touched = true
	}

	if !touched {
		return nil
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build job update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %d: %w", jobID, err)
	}
	return nil
}

// Job loads one job row.
func (s *Store) Job(ctx context.Context, jobID int64) (*domain.SearchJob, error) {
	query, args, err := sq.Select("id", "total_keywords", "processed_keywords",
		"successful_keywords", "failed_keywords", "status", "start_time",
		"end_time", "execution_time_seconds", "error_log").
		From("search_jobs").
		Where(sq.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job select: %w", err)
	}

	var job domain.SearchJob
	var endTime sql.NullTime
	var execSeconds float64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&job.ID, &job.TotalKeywords, &job.Processed, &job.Successful,
		&job.Failed, &job.Status, &job.StartTime, &endTime, &execSeconds,
		&job.ErrorLog)
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if endTime.Valid {
		t := endTime.Time
		job.EndTime = &t
	}
	job.ExecutionTime = time.Duration(execSeconds * float64(time.Second))
	return &job, nil
}

func (s *Store) jobStartTime(ctx context.Context, jobID int64) (time.Time, error) {
	query, args, err := sq.Select("start_time").
		From("search_jobs").
		Where(sq.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build start_time select: %w", err)
	}
	var start time.Time
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&start); err != nil {
		return time.Time{}, fmt.Errorf("load start time for job %d: %w", jobID, err)
	}
	return start, nil
}
