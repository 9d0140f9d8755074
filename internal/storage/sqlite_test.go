package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/utils"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path, utils.NewLoggerWithOutput(utils.ErrorLevel, io.Discard))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddKeywordsSkipsDuplicates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	added, err := store.AddKeywords(ctx, []string{"camera", "lens", "camera"}, "photo")
	if err != nil {
		t.Fatalf("AddKeywords: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	added, err = store.AddKeywords(ctx, []string{"camera", "tripod"}, "photo")
	if err != nil {
		t.Fatalf("AddKeywords second batch: %v", err)
	}
	if added != 1 {
		t.Errorf("second batch added = %d, want 1", added)
	}

	keywords, err := store.ActiveKeywords(ctx)
	if err != nil {
		t.Fatalf("ActiveKeywords: %v", err)
	}
	if len(keywords) != 3 {
		t.Errorf("active keywords = %d, want 3", len(keywords))
	}
	for _, kw := range keywords {
		if kw.Status != domain.KeywordActive {
			t.Errorf("keyword %q status = %s, want active", kw.Text, kw.Status)
		}
		if kw.LastSearchedAt != nil {
			t.Errorf("keyword %q has last_searched_at before any run", kw.Text)
		}
	}
}

func TestUpdateKeywordStatusExcludesFromActiveSet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.AddKeywords(ctx, []string{"camera", "lens"}, ""); err != nil {
		t.Fatalf("AddKeywords: %v", err)
	}
	keywords, err := store.ActiveKeywords(ctx)
	if err != nil {
		t.Fatalf("ActiveKeywords: %v", err)
	}

	if err := store.UpdateKeywordStatus(ctx, keywords[0].ID, domain.KeywordCompleted); err != nil {
		t.Fatalf("UpdateKeywordStatus: %v", err)
	}

	remaining, err := store.ActiveKeywords(ctx)
	if err != nil {
		t.Fatalf("ActiveKeywords after update: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keywords[1].ID {
		t.Errorf("active set = %+v, want only the untouched keyword", remaining)
	}
}

func sampleRecord(itemID string) domain.ListingRecord {
	price := 19.99
	feedback := 500
	rating := 0.995
	end := time.Now().Add(48 * time.Hour).UTC()
	return domain.ListingRecord{
		ItemID:              itemID,
		Title:               "Sample Listing " + itemID,
		Price:               &price,
		Currency:            "USD",
		SellerName:          "seller",
		SellerFeedbackCount: &feedback,
		SellerRating:        &rating,
		Condition:           "Pre-Owned",
		ListingType:         domain.ListingAuction,
		BidsCount:           3,
		AuctionEndTime:      &end,
		ItemURL:             "https://www.example.com/itm/" + itemID,
	}
}

func TestUpsertResultsDeduplicatesPerKeyword(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.AddKeywords(ctx, []string{"camera", "lens"}, ""); err != nil {
		t.Fatalf("AddKeywords: %v", err)
	}
	keywords, err := store.ActiveKeywords(ctx)
	if err != nil {
		t.Fatalf("ActiveKeywords: %v", err)
	}
	camera, lens := keywords[0].ID, keywords[1].ID

	inserted, err := store.UpsertResults(ctx, camera, []domain.ListingRecord{
		sampleRecord("100"), sampleRecord("200"),
	})
	if err != nil {
		t.Fatalf("UpsertResults: %v", err)
	}
	if inserted != 2 {
		t.Errorf("first upsert inserted = %d, want 2", inserted)
	}

	// Re-scrape with one overlap and one new item.
	inserted, err = store.UpsertResults(ctx, camera, []domain.ListingRecord{
		sampleRecord("200"), sampleRecord("300"),
	})
	if err != nil {
		t.Fatalf("UpsertResults rerun: %v", err)
	}
	if inserted != 1 {
		t.Errorf("rerun inserted = %d, want 1", inserted)
	}

	// The same item under a different keyword is a distinct row.
	inserted, err = store.UpsertResults(ctx, lens, []domain.ListingRecord{sampleRecord("200")})
	if err != nil {
		t.Fatalf("UpsertResults other keyword: %v", err)
	}
	if inserted != 1 {
		t.Errorf("other-keyword insert = %d, want 1", inserted)
	}

	count, err := store.ListingCount(ctx, camera)
	if err != nil {
		t.Fatalf("ListingCount: %v", err)
	}
	if count != 3 {
		t.Errorf("camera listings = %d, want 3", count)
	}
}

func TestUpsertResultsHandlesOptionalFields(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.AddKeywords(ctx, []string{"camera"}, ""); err != nil {
		t.Fatalf("AddKeywords: %v", err)
	}
	keywords, _ := store.ActiveKeywords(ctx)

	// Minimal record: only the mandatory item id set.
	rec := domain.ListingRecord{ItemID: "42", ListingType: domain.ListingUnknown}
	inserted, err := store.UpsertResults(ctx, keywords[0].ID, []domain.ListingRecord{rec})
	if err != nil {
		t.Fatalf("UpsertResults minimal record: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
}

func TestJobLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	jobID, err := store.StartJob(ctx, 5)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	job, err := store.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.Status != domain.JobInProgress {
		t.Errorf("status = %s, want in_progress", job.Status)
	}
	if job.TotalKeywords != 5 {
		t.Errorf("total = %d, want 5", job.TotalKeywords)
	}
	if job.EndTime != nil {
		t.Error("end_time set before the job finished")
	}

	two, one := 2, 1
	err = store.UpdateJob(ctx, jobID, domain.JobUpdate{
		Processed:   &two,
		Successful:  &one,
		Failed:      &one,
		AppendError: "keyword \"bad\": boom",
	})
	if err != nil {
		t.Fatalf("UpdateJob progress: %v", err)
	}

	if err := store.UpdateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobCompleted}); err != nil {
		t.Fatalf("UpdateJob complete: %v", err)
	}

	job, err = store.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job after completion: %v", err)
	}
	if job.Status != domain.JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.Processed != 2 || job.Successful != 1 || job.Failed != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", job.Processed, job.Successful, job.Failed)
	}
	if job.EndTime == nil {
		t.Error("end_time not set on completion")
	}
	if job.ErrorLog != "keyword \"bad\": boom" {
		t.Errorf("error_log = %q", job.ErrorLog)
	}
}

func TestUpdateJobAppendsErrorLines(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	jobID, err := store.StartJob(ctx, 2)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	for _, msg := range []string{"first failure", "second failure"} {
		if err := store.UpdateJob(ctx, jobID, domain.JobUpdate{AppendError: msg}); err != nil {
			t.Fatalf("UpdateJob append: %v", err)
		}
	}

	job, err := store.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	lines := strings.Split(job.ErrorLog, "\n")
	if len(lines) != 2 || lines[0] != "first failure" || lines[1] != "second failure" {
		t.Errorf("error_log = %q, want two ordered lines", job.ErrorLog)
	}
}

func TestUpdateJobTerminalStateIsFinal(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	jobID, err := store.StartJob(ctx, 1)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := store.UpdateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobCompleted}); err != nil {
		t.Fatalf("UpdateJob complete: %v", err)
	}
	before, _ := store.Job(ctx, jobID)

	// A second terminal transition must not move the job out of completed.
	if err := store.UpdateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobFailed}); err != nil {
		t.Fatalf("UpdateJob second terminal: %v", err)
	}
	after, err := store.Job(ctx, jobID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if after.Status != domain.JobCompleted {
		t.Errorf("status = %s, want completed to stick", after.Status)
	}
	if before.EndTime != nil && after.EndTime != nil && !after.EndTime.Equal(*before.EndTime) {
		t.Error("end_time changed on the ignored second transition")
	}
}
