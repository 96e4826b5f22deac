package simulate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aadhira3355/BluePulse/internal/db"
	"github.com/aadhira3355/BluePulse/internal/domain"
	"github.com/aadhira3355/BluePulse/internal/events"
	"github.com/aadhira3355/BluePulse/internal/migrate"
	"github.com/aadhira3355/BluePulse/internal/repo"
)

func newTestRunner(t *testing.T) (*Runner, repo.Repo) {
	t.Helper()
	conn, err := db.Open()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := New(r, events.Writer{DB: conn}, logger, 2*time.Second, time.Second, 100, 16)
	runner.Sleep = func(time.Duration) {} // no pacing in tests
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)
	return runner, r
}

func waitCompleted(t *testing.T, r repo.Repo, id string) domain.TaskRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := r.GetTaskRun(context.Background(), id)
		if err != nil {
			t.Fatalf("get task run: %v", err)
		}
		if run.Status == domain.RunCompleted {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not complete", id)
	return domain.TaskRun{}
}

func TestSubmitEDNAReturnsImmediately(t *testing.T) {
	runner, _ := newTestRunner(t)
	start := time.Now()
	run, err := runner.SubmitEDNA(context.Background(), "18s", "taxonomy")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("submit took %v, expected sub-second return", elapsed)
	}
	if run.Status != domain.RunStarted {
		t.Fatalf("status = %s, want started", run.Status)
	}
	if run.TotalStages != len(EDNAStages) {
		t.Fatalf("total stages = %d, want %d", run.TotalStages, len(EDNAStages))
	}
}

func TestEDNARunsToCompletion(t *testing.T) {
	runner, r := newTestRunner(t)
	run, err := runner.SubmitEDNA(context.Background(), "18s", "taxonomy")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := waitCompleted(t, r, run.ID)
	if done.CurrentStage != len(EDNAStages) {
		t.Fatalf("current stage = %d, want %d", done.CurrentStage, len(EDNAStages))
	}
	if done.StageName != EDNAStages[len(EDNAStages)-1] {
		t.Fatalf("stage name = %q", done.StageName)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	evts, err := r.ListEvents(context.Background(), "task_run", run.ID, 50)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	// submitted + one per stage + completed
	if len(evts) != len(EDNAStages)+2 {
		t.Fatalf("got %d events, want %d", len(evts), len(EDNAStages)+2)
	}
}

func TestTrainingDefaultEpochs(t *testing.T) {
	runner, r := newTestRunner(t)
	run, err := runner.SubmitTraining(context.Background(), "lstm", TrainingParams{BatchSize: 32, LearningRate: 0.001})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if run.TotalStages != 100 {
		t.Fatalf("total stages = %d, want default 100", run.TotalStages)
	}
	done := waitCompleted(t, r, run.ID)
	if done.CurrentStage != 100 {
		t.Fatalf("current stage = %d, want 100", done.CurrentStage)
	}
}

func TestSubmitIDsUnique(t *testing.T) {
	runner, _ := newTestRunner(t)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		run, err := runner.SubmitEDNA(context.Background(), "coi", "taxonomy")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if seen[run.ID] {
			t.Fatalf("duplicate id %s", run.ID)
		}
		seen[run.ID] = true
	}
}

func TestBuildResultStored(t *testing.T) {
	runner, r := newTestRunner(t)
	runner.BuildResult = func(run domain.TaskRun) string { return `{"ok":true}` }
	run, err := runner.SubmitEDNA(context.Background(), "18s", "taxonomy")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := waitCompleted(t, r, run.ID)
	if done.ResultJSON != `{"ok":true}` {
		t.Fatalf("result = %q", done.ResultJSON)
	}
}
