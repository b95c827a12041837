package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

// Job statuses. A job moves pending -> running -> one of the terminal
// states; skipped means every requested carrier was already enriched.
const (
	JobPending           = "pending"
	JobRunning           = "running"
	JobCompleted         = "completed"
	JobCompletedWithErrs = "completed_with_errors"
	JobFailed            = "failed"
	JobSkipped           = "skipped"
)

// EnrichmentJob tracks one enrichment run as a graph node, so job state
// survives process restarts and is queryable next to the data it produced.
type EnrichmentJob struct {
	JobID           string     `json:"job_id"`
	Status          string     `json:"status"`
	RequestedUSDOTs []int64    `json:"requested_usdots"`
	Processed       int64      `json:"processed"`
	Succeeded       int64      `json:"succeeded"`
	Failed          int64      `json:"failed"`
	PoliciesCreated int64      `json:"policies_created"`
	EventsCreated   int64      `json:"events_created"`
	GapsFound       int64      `json:"gaps_found"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobProgress is the delta applied by UpdateJob after each carrier.
type JobProgress struct {
	Processed       int64
	Succeeded       int64
	Failed          int64
	PoliciesCreated int64
	EventsCreated   int64
	GapsFound       int64
	LastError       string
}

// CreateJob records a new pending job and returns its id.
func (g *GraphStore) CreateJob(ctx context.Context, usdots []int64) (string, error) {
	jobID := uuid.NewString()
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `
		CREATE (j:EnrichmentJob {
			job_id: $job_id,
			status: $status,
			requested_usdots: $usdots,
			processed: 0,
			succeeded: 0,
			failed: 0,
			policies_created: 0,
			events_created: 0,
			gaps_found: 0,
			created_at: datetime()
		})`,
		map[string]any{"job_id": jobID, "status": JobPending, "usdots": usdots})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	g.log.Info("enrichment job created", "job_id", jobID, "carriers", len(usdots))
	return jobID, nil
}

// StartJob marks a job running.
func (g *GraphStore) StartJob(ctx context.Context, jobID string) error {
	return g.setJobStatus(ctx, jobID, JobRunning, `j.started_at = datetime()`)
}

// FinishJob marks a job with its terminal status.
func (g *GraphStore) FinishJob(ctx context.Context, jobID, status string) error {
	return g.setJobStatus(ctx, jobID, status, `j.completed_at = datetime()`)
}

func (g *GraphStore) setJobStatus(ctx context.Context, jobID, status, extra string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, fmt.Sprintf(`
		MATCH (j:EnrichmentJob {job_id: $job_id})
		SET j.status = $status, %s
		RETURN j.job_id`, extra),
		map[string]any{"job_id": jobID, "status": status})
	if err != nil {
		return fmt.Errorf("set job %s status: %w", jobID, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

// UpdateJob accumulates per-carrier progress onto the job node.
func (g *GraphStore) UpdateJob(ctx context.Context, jobID string, p JobProgress) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (j:EnrichmentJob {job_id: $job_id})
		SET j.processed = j.processed + $processed,
		    j.succeeded = j.succeeded + $succeeded,
		    j.failed = j.failed + $failed,
		    j.policies_created = j.policies_created + $policies,
		    j.events_created = j.events_created + $events,
		    j.gaps_found = j.gaps_found + $gaps,
		    j.last_error = CASE WHEN $last_error = '' THEN j.last_error ELSE $last_error END
		RETURN j.job_id`,
		map[string]any{
			"job_id":     jobID,
			"processed":  p.Processed,
			"succeeded":  p.Succeeded,
			"failed":     p.Failed,
			"policies":   p.PoliciesCreated,
			"events":     p.EventsCreated,
			"gaps":       p.GapsFound,
			"last_error": p.LastError,
		})
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

// GetJob fetches one job by id.
func (g *GraphStore) GetJob(ctx context.Context, jobID string) (EnrichmentJob, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (j:EnrichmentJob {job_id: $job_id}) RETURN j`,
		map[string]any{"job_id": jobID})
	if err != nil {
		return EnrichmentJob{}, err
	}
	if !res.Next(ctx) {
		return EnrichmentJob{}, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	props, ok := nodeProps(res.Record(), "j")
	if !ok {
		return EnrichmentJob{}, fmt.Errorf("job %s: unexpected record shape", jobID)
	}
	return jobFromProps(props), nil
}

// JobsByStatus lists jobs in a given status, newest first. An empty status
// lists everything.
func (g *GraphStore) JobsByStatus(ctx context.Context, status string, limit int) ([]EnrichmentJob, error) {
	if limit <= 0 {
		limit = 50
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (j:EnrichmentJob)
		WHERE $status = '' OR j.status = $status
		RETURN j ORDER BY j.created_at DESC LIMIT $limit`,
		map[string]any{"status": status, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out []EnrichmentJob
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "j"); ok {
			out = append(out, jobFromProps(props))
		}
	}
	return out, res.Err()
}

func jobFromProps(props map[string]any) EnrichmentJob {
	j := EnrichmentJob{
		JobID:           asString(props["job_id"]),
		Status:          asString(props["status"]),
		Processed:       asInt64(props["processed"]),
		Succeeded:       asInt64(props["succeeded"]),
		Failed:          asInt64(props["failed"]),
		PoliciesCreated: asInt64(props["policies_created"]),
		EventsCreated:   asInt64(props["events_created"]),
		GapsFound:       asInt64(props["gaps_found"]),
		LastError:       asString(props["last_error"]),
	}
	if list, ok := props["requested_usdots"].([]any); ok {
		for _, v := range list {
			j.RequestedUSDOTs = append(j.RequestedUSDOTs, asInt64(v))
		}
	}
	j.CreatedAt = asTime(props["created_at"])
	if t := asTime(props["started_at"]); !t.IsZero() {
		j.StartedAt = &t
	}
	if t := asTime(props["completed_at"]); !t.IsZero() {
		j.CompletedAt = &t
	}
	return j
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
