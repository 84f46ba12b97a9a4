package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// Pipeline is the orchestrator over verification, scanning, analysis and
// tag reconciliation. All processing is sequential; one media record is
// in flight at a time, and every record transition goes through the
// optimistic status updates in the repository so that a concurrently
// triggered single-item run cannot double-process the same record.
type Pipeline struct {
	media    *repository.MediaRepository
	jobs     *repository.JobRepository
	verifier *Verifier
	scanner  *Scanner
	analysis *AnalysisService
	tags     *TagService
	logger   *logger.Logger
}

// NewPipeline creates a new pipeline orchestrator.
func NewPipeline(
	media *repository.MediaRepository,
	jobs *repository.JobRepository,
	verifier *Verifier,
	scanner *Scanner,
	analysis *AnalysisService,
	tags *TagService,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		media:    media,
		jobs:     jobs,
		verifier: verifier,
		scanner:  scanner,
		analysis: analysis,
		tags:     tags,
		logger:   log,
	}
}

// IngestStats summarizes one ingest pass.
type IngestStats struct {
	Verify      VerifyStats `json:"verify"`
	Scan        ScanStats   `json:"scan"`
	TagsApplied int         `json:"tags_applied"`
}

// Ingest runs verification, then the new-file scan, then the path-based
// tag pass over the whole catalog. Verification MUST precede the scan:
// it re-points records at moved files so the scan does not mistake a
// rename for new duplicate content.
func (p *Pipeline) Ingest(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{}

	verify, err := p.verifier.VerifyAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}
	stats.Verify = *verify

	scan, err := p.scanner.Scan(ctx)
	if err != nil {
		return stats, fmt.Errorf("scan failed: %w", err)
	}
	stats.Scan = *scan

	recs, err := p.media.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list records: %w", err)
	}
	for i := range recs {
		applied, err := p.tags.PathPass(ctx, &recs[i])
		if err != nil {
			return stats, fmt.Errorf("path tag pass failed: %w", err)
		}
		stats.TagsApplied += applied
	}

	return stats, nil
}

// ProcessOne runs analysis for a single record by id. Records in error
// state are retried only after a scoped verification confirms the file
// is reachable again; duplicate records are never retried.
// Parameters:
//   - ctx: context for cancellation.
//   - id: catalog record id.
//
// Returns:
//   - bool: true when the record was processed to done.
//   - error: non-nil when the record cannot be processed; already-claimed
//     and skipped records return (false, nil) or a descriptive error.
func (p *Pipeline) ProcessOne(ctx context.Context, id string) (bool, error) {
	rec, err := p.media.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("record %s not found: %w", id, err)
	}
	return p.processRecord(ctx, rec)
}

// ProcessPending analyzes every record in new state, and optionally
// retries errored ones. Records are processed one at a time; a failure
// marks that record errored and moves on.
// Parameters:
//   - ctx: context for cancellation.
//   - includeErrors: also retry records in error state.
//
// Returns:
//   - int: number of records processed to done.
//   - error: non-nil only on store failure or cancellation.
func (p *Pipeline) ProcessPending(ctx context.Context, includeErrors bool) (int, error) {
	statuses := []domain.MediaStatus{domain.MediaStatusNew}
	if includeErrors {
		statuses = append(statuses, domain.MediaStatusError)
	}
	recs, err := p.media.ListByStatus(ctx, statuses...)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending records: %w", err)
	}

	processed := 0
	for i := range recs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		done, err := p.processRecord(ctx, &recs[i])
		if err != nil {
			p.logger.WithField(logger.FieldMediaID, recs[i].ID).WithError(err).
				Error("Record processing failed")
			continue
		}
		if done {
			processed++
		}
	}
	return processed, nil
}

// RetryErrors retries only errored records. Each candidate is verified
// first; records whose files are still unreachable stay errored and are
// skipped without an analysis attempt.
func (p *Pipeline) RetryErrors(ctx context.Context) (int, error) {
	recs, err := p.media.ListByStatus(ctx, domain.MediaStatusError)
	if err != nil {
		return 0, fmt.Errorf("failed to list errored records: %w", err)
	}

	processed := 0
	for i := range recs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		done, err := p.processRecord(ctx, &recs[i])
		if err != nil {
			p.logger.WithField(logger.FieldMediaID, recs[i].ID).WithError(err).
				Error("Retry failed")
			continue
		}
		if done {
			processed++
		}
	}
	return processed, nil
}

// TagScan reconciles tag associations for the given records, or the
// whole catalog when ids is empty. Record status is never touched; the
// scan re-applies both the path pass and the stored AI suggestions
// against the current vocabulary.
func (p *Pipeline) TagScan(ctx context.Context, ids []string) (int, error) {
	var recs []domain.MediaRecord
	if len(ids) == 0 {
		all, err := p.media.ListAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list records: %w", err)
		}
		recs = all
	} else {
		for _, id := range ids {
			rec, err := p.media.GetByID(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("record %s not found: %w", id, err)
			}
			recs = append(recs, *rec)
		}
	}

	applied := 0
	for i := range recs {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		n, err := p.tags.Reconcile(ctx, &recs[i])
		applied += n
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// Stats reports the catalog size per status.
func (p *Pipeline) Stats(ctx context.Context) (map[domain.MediaStatus]int64, error) {
	return p.media.CountByStatus(ctx)
}

// processRecord drives one record through the status machine. The claim
// transition (new/error to processing) is optimistic; losing it means
// another run already owns the record and this one walks away.
func (p *Pipeline) processRecord(ctx context.Context, rec *domain.MediaRecord) (bool, error) {
	switch rec.Status {
	case domain.MediaStatusNew:
		// claim below
	case domain.MediaStatusError:
		if strings.HasPrefix(rec.ErrorMessage, "duplicate content:") {
			p.logger.WithField(logger.FieldMediaID, rec.ID).
				Debug("Skipping duplicate record")
			return false, nil
		}
		reachable, err := p.verifier.CheckRecord(ctx, rec)
		if err != nil {
			return false, err
		}
		if !reachable {
			p.logger.WithField(logger.FieldMediaID, rec.ID).
				Warn("Skipping retry, file still unreachable")
			return false, nil
		}
	case domain.MediaStatusDone:
		return false, nil
	default:
		return false, fmt.Errorf("record %s is %s, not claimable", rec.ID, rec.Status)
	}

	claimed, err := p.media.SetStatusIf(ctx, rec.ID, rec.Status, domain.MediaStatusProcessing, "")
	if err != nil {
		return false, fmt.Errorf("failed to claim record: %w", err)
	}
	if !claimed {
		p.logger.WithField(logger.FieldMediaID, rec.ID).
			Info("Record claimed elsewhere, skipping")
		return false, nil
	}
	rec.Status = domain.MediaStatusProcessing

	var items []domain.AlbumItem
	if rec.IsAlbum() {
		items, err = p.media.ListAlbumItems(ctx, rec.ID)
		if err != nil {
			return false, p.failRecord(ctx, rec.ID, fmt.Errorf("failed to load album items: %w", err))
		}
	}

	result, err := p.analysis.Analyze(ctx, rec, items)
	if err != nil {
		return false, p.failRecord(ctx, rec.ID, err)
	}

	saved, err := p.media.SaveAnalysis(ctx, rec.ID, &result.Fields, result.Tags)
	if err != nil {
		return false, fmt.Errorf("failed to save analysis: %w", err)
	}
	if !saved {
		p.logger.WithField(logger.FieldMediaID, rec.ID).
			Warn("Record left processing state during analysis, result discarded")
		return false, nil
	}

	rec.SuggestedTags = result.Tags
	if _, err := p.tags.Reconcile(ctx, rec); err != nil {
		// Analysis stands; tags will catch up on the next tag scan.
		p.logger.WithField(logger.FieldMediaID, rec.ID).WithError(err).
			Warn("Tag reconciliation failed after analysis")
	}

	return true, nil
}

// failRecord marks a record errored with the failure stage preserved in
// its message, then returns the original error. The transition is
// guarded the same way SaveAnalysis guards the done path: only a record
// still in processing state takes the error.
func (p *Pipeline) failRecord(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	switch {
	case errors.Is(cause, ErrExtraction):
		msg = "frame extraction failed: " + msg
	case errors.Is(cause, ErrAnalysis):
		msg = "model call failed: " + msg
	case errors.Is(cause, ErrParse):
		msg = "model response unusable: " + msg
	}
	marked, err := p.media.SetStatusIf(ctx, id, domain.MediaStatusProcessing, domain.MediaStatusError, msg)
	if err != nil {
		return fmt.Errorf("failed to mark record errored after %v: %w", cause, err)
	}
	if !marked {
		p.logger.WithField(logger.FieldMediaID, id).
			Warn("Record left processing state before failure could be recorded")
	}
	return cause
}

// StartJob records a pending job for the given pipeline entry point.
// The returned job id is what external pollers use to observe
// completion. includeErrors only affects process_pending jobs, which
// then retry errored records alongside new ones.
func (p *Pipeline) StartJob(ctx context.Context, kind domain.JobKind, targetID string, includeErrors bool) (*domain.PipelineJob, error) {
	job := &domain.PipelineJob{
		ID:            uuid.New().String(),
		Kind:          kind,
		TargetID:      targetID,
		IncludeErrors: includeErrors,
		Status:        domain.JobStatusPending,
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// RunJob executes a previously created job to completion, updating its
// status record and emitting the start/complete marker lines that
// log-following tools key on.
func (p *Pipeline) RunJob(ctx context.Context, job *domain.PipelineJob) {
	ctx = logger.SetJobID(ctx, job.ID)

	if err := p.jobs.MarkRunning(ctx, job.ID); err != nil {
		p.logger.WithField(logger.FieldJobID, job.ID).WithError(err).
			Error("Failed to mark job running")
		return
	}
	logger.CtxInfo(ctx, "JOB %s START id=%s", job.ID, job.TargetID)

	start := time.Now()
	applied, message, err := p.dispatch(ctx, job)
	if err != nil {
		if markErr := p.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			p.logger.WithField(logger.FieldJobID, job.ID).WithError(markErr).
				Error("Failed to mark job failed")
		}
		logger.CtxError(ctx, "JOB %s FAILED id=%s: %v", job.ID, job.TargetID, err)
		return
	}

	if markErr := p.jobs.MarkCompleted(ctx, job.ID, applied, message); markErr != nil {
		p.logger.WithField(logger.FieldJobID, job.ID).WithError(markErr).
			Error("Failed to mark job completed")
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "JOB %s COMPLETE id=%s applied=%t", job.ID, job.TargetID, applied)
}

func (p *Pipeline) dispatch(ctx context.Context, job *domain.PipelineJob) (bool, string, error) {
	switch job.Kind {
	case domain.JobKindIngest:
		stats, err := p.Ingest(ctx)
		if err != nil {
			return false, "", err
		}
		applied := stats.Scan.NewFiles+stats.Scan.NewAlbums+stats.Verify.Relocated+stats.TagsApplied > 0
		msg := fmt.Sprintf("new_files=%d new_albums=%d duplicates=%d relocated=%d errored=%d tags=%d",
			stats.Scan.NewFiles, stats.Scan.NewAlbums, stats.Scan.Duplicates,
			stats.Verify.Relocated, stats.Verify.Errored, stats.TagsApplied)
		return applied, msg, nil

	case domain.JobKindProcessOne:
		done, err := p.ProcessOne(ctx, job.TargetID)
		if err != nil {
			return false, "", err
		}
		return done, fmt.Sprintf("processed=%t", done), nil

	case domain.JobKindProcessPending:
		n, err := p.ProcessPending(ctx, job.IncludeErrors)
		if err != nil {
			return false, "", err
		}
		return n > 0, fmt.Sprintf("processed=%d", n), nil

	case domain.JobKindTagScan:
		var ids []string
		if job.TargetID != "" {
			ids = []string{job.TargetID}
		}
		n, err := p.TagScan(ctx, ids)
		if err != nil {
			return false, "", err
		}
		return n > 0, fmt.Sprintf("tags_applied=%d", n), nil

	default:
		return false, "", fmt.Errorf("unknown job kind %q", job.Kind)
	}
}
