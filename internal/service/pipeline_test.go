package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/tmn/memelet/internal/domain"
)

const fencedResponse = "```json\n" + `{
	"template": "Pepe",
	"caption": "feels good man",
	"description": "A smug green frog.",
	"meaning": "Expresses satisfaction.",
	"tags": ["pepe", "unknown_tag"]
}` + "\n```"

func TestProcessOneToDone(t *testing.T) {
	env := newTestEnv(t)
	seedTag(t, env, "pepe", false, true)
	path := env.writeFile("pepe.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{Path: path})

	stub := &stubAnalyzer{response: fencedResponse}
	pipeline := env.newPipeline(stub)

	done, err := pipeline.ProcessOne(t.Context(), rec.ID)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !done {
		t.Fatal("ProcessOne reported not done")
	}
	if stub.calls != 1 {
		t.Errorf("analyzer called %d times, want 1", stub.calls)
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("Status = %s, want done", got.Status)
	}
	if got.Template != "Pepe" || got.Meaning == "" {
		t.Errorf("analysis fields not persisted: %+v", got)
	}
	if len(got.SuggestedTags) != 2 {
		t.Errorf("SuggestedTags = %v, want both raw suggestions kept", got.SuggestedTags)
	}

	// Only the in-vocabulary suggestion becomes an association.
	names := tagNames(t, env, rec.ID)
	if len(names) != 1 || names[0] != "pepe" {
		t.Errorf("tags = %v, want [pepe]", names)
	}
}

func TestProcessOneAnalysisFailure(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("broken.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{Path: path})

	pipeline := env.newPipeline(&stubAnalyzer{err: errors.New("model unavailable")})

	if _, err := pipeline.ProcessOne(t.Context(), rec.ID); err == nil {
		t.Fatal("expected error")
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusError {
		t.Errorf("Status = %s, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "model call failed") {
		t.Errorf("ErrorMessage = %q, want model call failure", got.ErrorMessage)
	}
}

func TestProcessOneUnparseableResponse(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("odd.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{Path: path})

	pipeline := env.newPipeline(&stubAnalyzer{response: "I cannot analyze this image."})

	if _, err := pipeline.ProcessOne(t.Context(), rec.ID); err == nil {
		t.Fatal("expected error")
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusError {
		t.Errorf("Status = %s, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "model response unusable") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestProcessSkipsDuplicateRecords(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("twin.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{
		Path:         path,
		Status:       domain.MediaStatusError,
		ErrorMessage: "duplicate content: identical to record abc",
	})

	stub := &stubAnalyzer{response: fencedResponse}
	pipeline := env.newPipeline(stub)

	done, err := pipeline.ProcessOne(t.Context(), rec.ID)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if done {
		t.Error("duplicate record was processed")
	}
	if stub.calls != 0 {
		t.Errorf("analyzer called %d times for a duplicate", stub.calls)
	}
}

func TestRetrySkipsUnreachableRecords(t *testing.T) {
	env := newTestEnv(t)

	reachable := env.writeFile("back.jpg", []byte("now readable"))
	recBack := seedRecord(t, env, &domain.MediaRecord{
		Path:         reachable,
		Status:       domain.MediaStatusError,
		ErrorMessage: "model call failed: transient",
	})
	recGone := seedRecord(t, env, &domain.MediaRecord{
		Path:         env.lib.MediaRoot + "/still-gone.jpg",
		Status:       domain.MediaStatusError,
		ErrorMessage: "file missing and no content hash recorded; cannot relocate",
	})

	stub := &stubAnalyzer{response: fencedResponse}
	pipeline := env.newPipeline(stub)

	processed, err := pipeline.RetryErrors(t.Context())
	if err != nil {
		t.Fatalf("RetryErrors: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}

	back, err := env.media.GetByID(t.Context(), recBack.ID)
	if err != nil {
		t.Fatal(err)
	}
	if back.Status != domain.MediaStatusDone {
		t.Errorf("recovered record status = %s, want done", back.Status)
	}

	gone, err := env.media.GetByID(t.Context(), recGone.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone.Status != domain.MediaStatusError {
		t.Errorf("unreachable record status = %s, want error", gone.Status)
	}
	if stub.calls != 1 {
		t.Errorf("analyzer called %d times, want 1", stub.calls)
	}
}

func TestIngestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	seedTag(t, env, "pepe", true, false)
	env.writeFile("pepe_original.jpg", []byte("fresh meme"))

	pipeline := env.newPipeline(&stubAnalyzer{response: fencedResponse})

	stats, err := pipeline.Ingest(t.Context())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.Scan.NewFiles != 1 {
		t.Errorf("NewFiles = %d, want 1", stats.Scan.NewFiles)
	}
	if stats.TagsApplied != 1 {
		t.Errorf("TagsApplied = %d, want 1 from the path pass", stats.TagsApplied)
	}

	// Re-running changes nothing.
	again, err := pipeline.Ingest(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if again.Scan.NewFiles != 0 || again.TagsApplied != 0 {
		t.Errorf("second ingest not idempotent: %+v", again)
	}
}

func TestTagScanDoesNotTouchStatus(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("done.jpg", []byte("already processed"))
	rec := seedRecord(t, env, &domain.MediaRecord{
		Path:          path,
		Status:        domain.MediaStatusDone,
		SuggestedTags: domain.StringArray{"wojak"},
	})

	// The vocabulary gains the tag after analysis already ran.
	seedTag(t, env, "wojak", false, true)

	pipeline := env.newPipeline(&stubAnalyzer{})
	applied, err := pipeline.TagScan(t.Context(), nil)
	if err != nil {
		t.Fatalf("TagScan: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("Status = %s, tag scan must not change it", got.Status)
	}
	names := tagNames(t, env, rec.ID)
	if len(names) != 1 || names[0] != "wojak" {
		t.Errorf("tags = %v, want [wojak]", names)
	}
}

func TestRunJobRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile("job.jpg", []byte("job target"))

	pipeline := env.newPipeline(&stubAnalyzer{response: fencedResponse})

	job, err := pipeline.StartJob(t.Context(), domain.JobKindIngest, "", false)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("fresh job status = %s, want pending", job.Status)
	}

	pipeline.RunJob(t.Context(), job)

	got, err := env.jobs.GetByID(t.Context(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed (message %q)", got.Status, got.Message)
	}
	if !got.Applied {
		t.Error("job applied = false, want true for a scan that found a file")
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("job timestamps not set")
	}
	if !strings.Contains(got.Message, "new_files=1") {
		t.Errorf("job message = %q", got.Message)
	}
}

func TestProcessPendingJobIncludeErrors(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("flaky.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{
		Path:         path,
		Status:       domain.MediaStatusError,
		ErrorMessage: "model call failed: transient",
	})

	pipeline := env.newPipeline(&stubAnalyzer{response: fencedResponse})

	// Without the flag the errored record is left alone.
	job, err := pipeline.StartJob(t.Context(), domain.JobKindProcessPending, "", false)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	pipeline.RunJob(t.Context(), job)

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusError {
		t.Fatalf("Status = %s, plain process_pending must not retry errors", got.Status)
	}

	// With include_errors the same job kind retries it.
	job, err = pipeline.StartJob(t.Context(), domain.JobKindProcessPending, "", true)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if !job.IncludeErrors {
		t.Error("IncludeErrors not recorded on the job")
	}
	pipeline.RunJob(t.Context(), job)

	got, err = env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("Status = %s, want done after include_errors run", got.Status)
	}

	jobRec, err := env.jobs.GetByID(t.Context(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if jobRec.Status != domain.JobStatusCompleted || !jobRec.Applied {
		t.Errorf("job = %+v, want completed and applied", jobRec)
	}
}

func TestFailureMarkOnlyAppliesToProcessingRecords(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("settled.jpg", []byte("image bytes"))
	rec := seedRecord(t, env, &domain.MediaRecord{
		Path:   path,
		Status: domain.MediaStatusDone,
	})

	pipeline := env.newPipeline(&stubAnalyzer{})

	cause := errors.New("late failure")
	if err := pipeline.failRecord(t.Context(), rec.ID, cause); !errors.Is(err, cause) {
		t.Fatalf("failRecord returned %v, want the original cause", err)
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("Status = %s, a record no longer processing must keep its state", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", got.ErrorMessage)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, &domain.MediaRecord{Path: env.lib.MediaRoot + "/a.jpg"})
	seedRecord(t, env, &domain.MediaRecord{Path: env.lib.MediaRoot + "/b.jpg"})
	seedRecord(t, env, &domain.MediaRecord{Path: env.lib.MediaRoot + "/c.jpg", Status: domain.MediaStatusDone})

	pipeline := env.newPipeline(&stubAnalyzer{})
	counts, err := pipeline.Stats(t.Context())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if counts[domain.MediaStatusNew] != 2 || counts[domain.MediaStatusDone] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
