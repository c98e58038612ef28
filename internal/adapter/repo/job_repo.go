package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Flexible
// artifacts (IR, shot plan, assets, transitions) live in JSONB columns.
type JobRepositoryPG struct {
	runner *infra.SQLRunner
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(runner *infra.SQLRunner) *JobRepositoryPG {
	return &JobRepositoryPG{runner: runner}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = r.runner.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.RevisionOf,
		cols.targetedFields,
		job.ClientID,
		job.SlotClient,
		job.State,
		cols.transitions,
		job.UserInputRedacted,
		job.UserInputHash,
		cols.piiFlags,
		job.Locale,
		job.TemplateID,
		job.TemplateVersion,
		job.QualityMode,
		job.Resolution,
		job.TotalDurationS,
		cols.ir,
		cols.shotPlan,
		cols.shotRequests,
		cols.assets,
		cols.selectedSeeds,
		cols.errorDetails,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.runner.QueryRow(ctx, sqlinline.QSelectJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Update locks the row, applies mutate and writes the result back in one
// transaction, so concurrent stages never lose each other's writes.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID string, mutate domain.MutateFunc) (*domain.Job, error) {
	var updated *domain.Job
	err := r.runner.WithTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanJob(tx.QueryRow(ctx, sqlinline.QSelectJobForUpdate, jobID))
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if err := mutate(job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()
		cols, err := encodeJob(job)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlinline.QUpdateJob,
			job.ID,
			cols.targetedFields,
			job.State,
			cols.transitions,
			job.TemplateID,
			job.TemplateVersion,
			job.QualityMode,
			job.Resolution,
			job.TotalDurationS,
			cols.ir,
			cols.shotPlan,
			cols.shotRequests,
			cols.assets,
			cols.selectedSeeds,
			cols.errorDetails,
			job.UpdatedAt,
			job.SlotClient,
		); err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListByState returns jobs currently in any of the given states, oldest first.
func (r *JobRepositoryPG) ListByState(ctx context.Context, states ...domain.JobState) ([]*domain.Job, error) {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	rows, err := r.runner.Query(ctx, sqlinline.QSelectJobsByState, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type jobColumns struct {
	targetedFields []byte
	transitions    []byte
	piiFlags       []byte
	ir             []byte
	shotPlan       []byte
	shotRequests   []byte
	assets         []byte
	selectedSeeds  []byte
	errorDetails   []byte
}

func encodeJob(job *domain.Job) (jobColumns, error) {
	var cols jobColumns
	var err error
	if cols.targetedFields, err = marshalOr(job.TargetedFields, "[]"); err != nil {
		return cols, err
	}
	if cols.transitions, err = marshalOr(job.StateTransitions, "[]"); err != nil {
		return cols, err
	}
	if cols.piiFlags, err = marshalOr(job.PIIFlags, "[]"); err != nil {
		return cols, err
	}
	if cols.shotRequests, err = marshalOr(job.ShotRequests, "[]"); err != nil {
		return cols, err
	}
	if cols.assets, err = marshalOr(job.Assets, "[]"); err != nil {
		return cols, err
	}
	if job.IR != nil {
		if cols.ir, err = json.Marshal(job.IR); err != nil {
			return cols, fmt.Errorf("encode ir: %w", err)
		}
	}
	if job.ShotPlan != nil {
		if cols.shotPlan, err = json.Marshal(job.ShotPlan); err != nil {
			return cols, fmt.Errorf("encode shot plan: %w", err)
		}
	}
	if job.SelectedSeeds != nil {
		if cols.selectedSeeds, err = json.Marshal(job.SelectedSeeds); err != nil {
			return cols, fmt.Errorf("encode selected seeds: %w", err)
		}
	}
	if job.ErrorDetails != nil {
		if cols.errorDetails, err = json.Marshal(job.ErrorDetails); err != nil {
			return cols, fmt.Errorf("encode error details: %w", err)
		}
	}
	return cols, nil
}

func marshalOr[T any](v []T, empty string) ([]byte, error) {
	if len(v) == 0 {
		return []byte(empty), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}
	return b, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                                           domain.Job
		targeted, transitions, pii                    []byte
		ir, plan, requests, assets, seeds, errDetails []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.RevisionOf,
		&targeted,
		&job.ClientID,
		&job.SlotClient,
		&job.State,
		&transitions,
		&job.UserInputRedacted,
		&job.UserInputHash,
		&pii,
		&job.Locale,
		&job.TemplateID,
		&job.TemplateVersion,
		&job.QualityMode,
		&job.Resolution,
		&job.TotalDurationS,
		&ir,
		&plan,
		&requests,
		&assets,
		&seeds,
		&errDetails,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	decoders := []struct {
		raw  []byte
		into any
		name string
	}{
		{targeted, &job.TargetedFields, "targeted_fields"},
		{transitions, &job.StateTransitions, "state_transitions"},
		{pii, &job.PIIFlags, "pii_flags"},
		{requests, &job.ShotRequests, "shot_requests"},
		{assets, &job.Assets, "assets"},
		{seeds, &job.SelectedSeeds, "selected_seeds"},
		{errDetails, &job.ErrorDetails, "error_details"},
		{ir, &job.IR, "ir"},
		{plan, &job.ShotPlan, "shot_plan"},
	}
	for _, d := range decoders {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.into); err != nil {
			return nil, fmt.Errorf("decode %s for job %s: %w", d.name, job.ID, err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
