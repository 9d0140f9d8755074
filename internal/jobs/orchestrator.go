// Package jobs runs keyword batches: it walks the active keyword set, wraps
// each search in the transport retry policy, records per-keyword outcomes
// and maintains the job row's state machine.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/monitoring"
	"github.com/valpere/ListingScout/internal/scraper"
	"github.com/valpere/ListingScout/internal/utils"
)

// Gateway is the persistence surface the orchestrator needs. Implemented by
// the storage package; narrowed here so tests can fake it.
type Gateway interface {
	ActiveKeywords(ctx context.Context) ([]domain.Keyword, error)
	StartJob(ctx context.Context, totalKeywords int) (int64, error)
	UpdateJob(ctx context.Context, jobID int64, update domain.JobUpdate) error
	UpdateKeywordStatus(ctx context.Context, keywordID int64, status domain.KeywordStatus) error
	UpsertResults(ctx context.Context, keywordID int64, records []domain.ListingRecord) (int, error)
}

// Searcher produces listing records for one keyword.
type Searcher interface {
	SearchKeyword(ctx context.Context, keyword string, filters domain.SearchFilters) ([]domain.ListingRecord, error)
}

// Summary is the terminal accounting of one run. Processed always equals
// Successful plus Failed.
type Summary struct {
	JobID      int64
	Total      int
	Processed  int
	Successful int
	Failed     int
	Inserted   int
	Duration   time.Duration
}

// Orchestrator drives one batch run over the active keywords.
type Orchestrator struct {
	gateway  Gateway
	searcher Searcher
	retry    scraper.RetryPolicy
	log      utils.Logger
}

// NewOrchestrator wires the batch runner.
func NewOrchestrator(gateway Gateway, searcher Searcher, retry scraper.RetryPolicy, log utils.Logger) *Orchestrator {
	return &Orchestrator{
		gateway:  gateway,
		searcher: searcher,
		retry:    retry,
		log:      log,
	}
}

// Run processes every active keyword once. A keyword failure is recorded and
// the batch continues; only gateway failures on the job row itself abort the
// run. The job always reaches "completed" when the loop finishes, regardless
// of per-keyword outcomes, and end time and execution time are set only on
// that terminal transition.
func (o *Orchestrator) Run(ctx context.Context, filters domain.SearchFilters) (*Summary, error) {
	started := time.Now()

	keywords, err := o.gateway.ActiveKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active keywords: %w", err)
	}

	jobID, err := o.gateway.StartJob(ctx, len(keywords))
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	log := o.log.WithField("job_id", jobID)
	log.Infof("starting run over %d active keywords", len(keywords))

	summary := &Summary{JobID: jobID, Total: len(keywords)}

	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}

		inserted, err := o.processKeyword(ctx, kw, filters)
		summary.Processed++
		if err != nil {
			summary.Failed++
			monitoring.KeywordsProcessed.WithLabelValues("failed").Inc()
			log.WithField("keyword", kw.Text).Errorf("keyword failed: %v", err)
		} else {
			summary.Successful++
			summary.Inserted += inserted
			monitoring.KeywordsProcessed.WithLabelValues("successful").Inc()
		}

		update := domain.JobUpdate{
			Processed:  intPtr(summary.Processed),
			Successful: intPtr(summary.Successful),
			Failed:     intPtr(summary.Failed),
		}
		if err != nil {
			update.AppendError = fmt.Sprintf("keyword %q: %v", kw.Text, err)
		}
		if uerr := o.gateway.UpdateJob(ctx, jobID, update); uerr != nil {
			return summary, fmt.Errorf("update job %d: %w", jobID, uerr)
		}
	}

	if err := o.gateway.UpdateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobCompleted}); err != nil {
		return summary, fmt.Errorf("complete job %d: %w", jobID, err)
	}

	summary.Duration = time.Since(started)
	log.WithFields(map[string]interface{}{
		"processed":  summary.Processed,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"inserted":   summary.Inserted,
		"duration":   summary.Duration.Round(time.Millisecond).String(),
	}).Info("run finished")

	return summary, nil
}

// processKeyword searches one keyword with transport retries and persists
// the results. A persistence failure counts as a keyword failure even though
// the search itself succeeded; the scraped data was lost either way.
func (o *Orchestrator) processKeyword(ctx context.Context, kw domain.Keyword, filters domain.SearchFilters) (int, error) {
	var records []domain.ListingRecord
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		var serr error
		records, serr = o.searcher.SearchKeyword(ctx, kw.Text, filters)
		return serr
	})
	if err != nil {
		o.markKeyword(ctx, kw.ID, domain.KeywordFailed)
		return 0, err
	}

	inserted, err := o.gateway.UpsertResults(ctx, kw.ID, records)
	if err != nil {
		o.markKeyword(ctx, kw.ID, domain.KeywordFailed)
		return 0, utils.NewError(utils.ErrCodePersistenceFailed, "failed to store results").WithCause(err)
	}

	o.markKeyword(ctx, kw.ID, domain.KeywordCompleted)
	o.log.WithFields(map[string]interface{}{
		"keyword":  kw.Text,
		"scraped":  len(records),
		"inserted": inserted,
	}).Info("keyword processed")
	return inserted, nil
}

// markKeyword updates a keyword's status; a failure here is logged but does
// not change the keyword's outcome in the run accounting.
func (o *Orchestrator) markKeyword(ctx context.Context, keywordID int64, status domain.KeywordStatus) {
	if err := o.gateway.UpdateKeywordStatus(ctx, keywordID, status); err != nil {
		o.log.Warnf("failed to mark keyword %d %s: %v", keywordID, status, err)
	}
}

func intPtr(v int) *int { return &v }
