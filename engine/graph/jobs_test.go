package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

func TestCreateJobReturnsID(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	jobID, err := g.CreateJob(context.Background(), []int64{12345, 67890})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if jobID == "" {
		t.Fatal("job id must not be empty")
	}
	if !strings.Contains(sess.queries[0], "CREATE (j:EnrichmentJob") {
		t.Errorf("query = %q", sess.queries[0])
	}
	if sess.params[0]["status"] != JobPending {
		t.Errorf("new jobs must start pending, got %v", sess.params[0]["status"])
	}
}

func TestUpdateJobAccumulates(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"j.job_id"}, []any{"job-1"})),
	}}
	g := testStore(sess)

	err := g.UpdateJob(context.Background(), "job-1", JobProgress{
		Processed:       1,
		Succeeded:       1,
		PoliciesCreated: 3,
		GapsFound:       1,
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if !strings.Contains(sess.queries[0], "j.processed = j.processed + $processed") {
		t.Error("progress must accumulate, not overwrite")
	}
	if sess.params[0]["policies"] != int64(3) {
		t.Errorf("policies = %v", sess.params[0]["policies"])
	}
}

func TestUpdateJobMissing(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	err := g.UpdateJob(context.Background(), "nope", JobProgress{Processed: 1})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetJobParsesNode(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeNodeRecord("j", map[string]any{
			"job_id":           "job-1",
			"status":           JobCompletedWithErrs,
			"requested_usdots": []any{int64(12345), int64(67890)},
			"processed":        int64(2),
			"succeeded":        int64(1),
			"failed":           int64(1),
			"policies_created": int64(4),
			"last_error":       "carrier 67890: fetch insurance history: timeout",
		})),
	}}
	g := testStore(sess)

	job, err := g.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != JobCompletedWithErrs {
		t.Errorf("status = %q", job.Status)
	}
	if len(job.RequestedUSDOTs) != 2 || job.RequestedUSDOTs[1] != 67890 {
		t.Errorf("requested = %v", job.RequestedUSDOTs)
	}
	if job.Failed != 1 || job.PoliciesCreated != 4 {
		t.Errorf("job = %+v", job)
	}
}

func TestRecomputeCoveragePeriods(t *testing.T) {
	keys := []string{"usdot", "policy_id", "effective_date", "expiration_date", "cancellation_date"}
	sess := &mockSession{results: []*mockResult{
		newMockResult(
			makeRecord(keys, []any{int64(12345), "POL-A", "2023-01-01", "2023-06-01", "2023-05-15"}),
			makeRecord(keys, []any{int64(12345), "POL-B", "2023-07-01", nil, nil}),
		),
		newMockResult(makeRecord([]string{"n"}, []any{int64(2)})), // edge updates
		newMockResult(makeRecord([]string{"n"}, []any{int64(1)})), // succession links
	}}
	g := testStore(sess)

	stats, err := g.RecomputeCoveragePeriods(context.Background(), 100)
	if err != nil {
		t.Fatalf("RecomputeCoveragePeriods: %v", err)
	}
	if stats.CarriersScanned != 1 || stats.EdgesUpdated != 2 || stats.SuccessionLinks != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rows := sess.params[1]["rows"].([]map[string]any)
	if rows[0]["to_date"] != "2023-05-15" {
		t.Errorf("cancellation must win over expiration, got %v", rows[0]["to_date"])
	}
	if rows[0]["status"] != "CANCELLED" {
		t.Errorf("status = %v", rows[0]["status"])
	}
	if rows[1]["to_date"] != nil || rows[1]["duration_days"] != domain.OngoingSentinel {
		t.Errorf("open policy row = %v", rows[1])
	}

	links := sess.params[2]["rows"].([]map[string]any)
	// 2023-05-15 to 2023-07-01
	if links[0]["gap_days"] != 47 {
		t.Errorf("gap_days = %v", links[0]["gap_days"])
	}
}
