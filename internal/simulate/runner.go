// Package simulate drives the fake background jobs (eDNA analysis and model
// training). A submitted job is enqueued and a worker walks its stage list,
// sleeping a fixed delay per stage and recording every advance in the store,
// so status queries always see live state. No real work happens at any stage.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aadhira3355/BluePulse/internal/domain"
	"github.com/aadhira3355/BluePulse/internal/events"
	"github.com/aadhira3355/BluePulse/internal/repo"
)

// EDNAStages is the fixed stage list of a simulated eDNA analysis.
var EDNAStages = []string{
	"Processing sequence files",
	"Quality control and filtering",
	"Taxonomic classification",
	"Biodiversity assessment",
	"Generating results",
}

const defaultWorkers = 4

var ErrQueueFull = fmt.Errorf("task queue full")

// Runner schedules and advances simulated task runs.
type Runner struct {
	Repo   repo.Repo
	Events events.Writer
	Logger *slog.Logger

	StageDelay    time.Duration
	EpochDelay    time.Duration
	DefaultEpochs int
	Workers       int

	// Sleep paces stage advancement; tests inject a no-op.
	Sleep func(time.Duration)
	Now   func() time.Time

	// BuildResult produces the result payload stored when a run completes.
	// Optional; runs complete without a payload when unset.
	BuildResult func(domain.TaskRun) string

	// OnComplete runs after a job finishes, outside the final transaction.
	OnComplete func(ctx context.Context, run domain.TaskRun)

	queue  chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New returns a runner with production pacing.
func New(r repo.Repo, w events.Writer, logger *slog.Logger, stageDelay, epochDelay time.Duration, defaultEpochs, queueSize int) *Runner {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Runner{
		Repo:          r,
		Events:        w,
		Logger:        logger,
		StageDelay:    stageDelay,
		EpochDelay:    epochDelay,
		DefaultEpochs: defaultEpochs,
		Workers:       defaultWorkers,
		Sleep:         time.Sleep,
		Now:           time.Now,
		queue:         make(chan string, queueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop cancels the workers and waits for in-flight runs to park.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// TrainingParams are the submission parameters for a model_training run.
type TrainingParams struct {
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	Device       string  `json:"device"`
}

// SubmitEDNA enqueues an eDNA analysis run and returns immediately.
func (r *Runner) SubmitEDNA(ctx context.Context, geneTarget, analysisType string) (domain.TaskRun, error) {
	params, _ := json.Marshal(map[string]string{
		"gene_target":   geneTarget,
		"analysis_type": analysisType,
	})
	run := domain.TaskRun{
		ID:          r.newID("analysis", ""),
		Kind:        domain.KindEDNAAnalysis,
		Subject:     geneTarget,
		TotalStages: len(EDNAStages),
		ParamsJSON:  string(params),
	}
	return r.submit(ctx, run)
}

// SubmitTraining enqueues a model training run and returns immediately.
func (r *Runner) SubmitTraining(ctx context.Context, modelID string, params TrainingParams) (domain.TaskRun, error) {
	if params.Epochs <= 0 {
		params.Epochs = r.DefaultEpochs
	}
	raw, _ := json.Marshal(params)
	run := domain.TaskRun{
		ID:          r.newID("training", modelID),
		Kind:        domain.KindModelTraining,
		Subject:     modelID,
		TotalStages: params.Epochs,
		ParamsJSON:  string(raw),
	}
	return r.submit(ctx, run)
}

func (r *Runner) submit(ctx context.Context, run domain.TaskRun) (domain.TaskRun, error) {
	now := r.Now().UTC().Format(time.RFC3339)
	run.Status = domain.RunStarted
	run.CreatedAt = now
	run.UpdatedAt = now
	if err := r.Repo.InsertTaskRun(ctx, run); err != nil {
		return domain.TaskRun{}, fmt.Errorf("insert task run: %w", err)
	}
	if err := r.appendEvent(ctx, "task.submitted", run, events.EventPayload{"kind": run.Kind, "total_stages": run.TotalStages}); err != nil {
		return domain.TaskRun{}, err
	}
	select {
	case r.queue <- run.ID:
	default:
		return domain.TaskRun{}, ErrQueueFull
	}
	r.Logger.Info("task submitted", "task_id", run.ID, "kind", run.Kind, "total_stages", run.TotalStages)
	return run, nil
}

func (r *Runner) appendEvent(ctx context.Context, evtType string, run domain.TaskRun, payload events.EventPayload) error {
	tx, err := r.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Events.Append(ctx, tx, evtType, "task_run", run.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// newID derives identifiers like analysis_20250926_061800_1a2b3c4d. The
// timestamp keeps them readable; the suffix keeps same-second submissions
// unique.
func (r *Runner) newID(prefix, subject string) string {
	stamp := r.Now().Format("20060102_150405")
	suffix := uuid.NewString()[:8]
	if subject != "" {
		return fmt.Sprintf("%s_%s_%s_%s", prefix, subject, stamp, suffix)
	}
	return fmt.Sprintf("%s_%s_%s", prefix, stamp, suffix)
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			if err := r.process(ctx, id); err != nil {
				r.Logger.Error("process task run", "task_id", id, "err", err)
			}
		}
	}
}

// process advances a run through its stages. Stages always succeed; the only
// suspension point is the artificial per-stage delay.
func (r *Runner) process(ctx context.Context, id string) error {
	run, err := r.Repo.GetTaskRun(ctx, id)
	if err != nil {
		return fmt.Errorf("load task run: %w", err)
	}
	delay := r.StageDelay
	if run.Kind == domain.KindModelTraining {
		delay = r.EpochDelay
	}
	r.Logger.Info("task started", "task_id", run.ID, "kind", run.Kind)

	for i := 0; i < run.TotalStages; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Sleep(delay)
		stageName := r.stageName(run, i)
		if err := r.advance(ctx, run, i+1, stageName); err != nil {
			return err
		}
		if run.Kind == domain.KindModelTraining {
			if i%10 == 0 {
				r.Logger.Info("training progress", "training_id", run.ID, "epoch", i, "total_epochs", run.TotalStages)
			}
		} else {
			r.Logger.Info("analysis stage", "analysis_id", run.ID, "stage", stageName)
		}
	}
	if err := r.complete(ctx, run); err != nil {
		return err
	}
	r.Logger.Info("task completed", "task_id", run.ID, "kind", run.Kind)
	return nil
}

func (r *Runner) stageName(run domain.TaskRun, i int) string {
	if run.Kind == domain.KindEDNAAnalysis && i < len(EDNAStages) {
		return EDNAStages[i]
	}
	return fmt.Sprintf("Epoch %d/%d", i+1, run.TotalStages)
}

func (r *Runner) advance(ctx context.Context, run domain.TaskRun, stage int, stageName string) error {
	now := r.Now().UTC().Format(time.RFC3339)
	tx, err := r.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Repo.AdvanceTaskRunTx(ctx, tx, run.ID, stage, stageName, domain.RunRunning, now); err != nil {
		return fmt.Errorf("advance task run: %w", err)
	}
	if err := r.Events.Append(ctx, tx, "task.stage", "task_run", run.ID, events.EventPayload{"stage": stage, "name": stageName}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) complete(ctx context.Context, run domain.TaskRun) error {
	now := r.Now().UTC().Format(time.RFC3339)
	result := ""
	if r.BuildResult != nil {
		result = r.BuildResult(run)
	}
	tx, err := r.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Repo.CompleteTaskRunTx(ctx, tx, run.ID, result, now); err != nil {
		return fmt.Errorf("complete task run: %w", err)
	}
	if err := r.Events.Append(ctx, tx, "task.completed", "task_run", run.ID, events.EventPayload{"kind": run.Kind}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if r.OnComplete != nil {
		r.OnComplete(ctx, run)
	}
	return nil
}
