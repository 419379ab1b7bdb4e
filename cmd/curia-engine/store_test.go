// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/curia-foundation/curia/lib/clock"
	"github.com/curia-foundation/curia/lib/curation"
)

var engineTestEpoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.Default()
}

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	return openTestStoreRatio(t, 0.60)
}

func openTestStoreRatio(t *testing.T, ratio float64) (*Store, *clock.FakeClock) {
	t.Helper()

	fakeClock := clock.Fake(engineTestEpoch)

	store, err := OpenStore(StoreConfig{
		Path:           filepath.Join(t.TempDir(), "curia_test.db"),
		PoolSize:       2,
		ConsensusRatio: ratio,
		Clock:          fakeClock,
		Logger:         testLogger(t),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})
	return store, fakeClock
}

// seedAgent registers and verifies an agent, then forces its karma to
// the given score so tests can set up vote weights directly.
func seedAgent(t *testing.T, store *Store, handle string, score float64) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.BeginVerification(ctx, handle, "curia-verify-feedbeef"); err != nil {
		t.Fatalf("BeginVerification(%s): %v", handle, err)
	}
	if err := store.MarkVerified(ctx, handle, store.clock.Now()); err != nil {
		t.Fatalf("MarkVerified(%s): %v", handle, err)
	}
	if score != 0 {
		setKarma(t, store, handle, score)
	}
}

// setKarma writes an agent's karma directly, bypassing the credit
// path.
func setKarma(t *testing.T, store *Store, handle string, score float64) {
	t.Helper()

	conn, err := store.pool.Take(context.Background())
	if err != nil {
		t.Fatalf("pool.Take: %v", err)
	}
	defer store.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE agents SET karma = ? WHERE handle = ?",
		&sqlitex.ExecOptions{Args: []any{score, handle}})
	if err != nil {
		t.Fatalf("setting karma for %s: %v", handle, err)
	}
}

// mustCreateTask assembles a task from a spec the way the task/create
// handler does and stores it.
func mustCreateTask(t *testing.T, store *Store, spec curation.TaskSpec) *curation.Task {
	t.Helper()

	now := store.clock.Now()
	task := &curation.Task{
		ID:                   curation.NewTaskID("operator/test", spec.Type, spec.Target, now),
		Type:                 spec.Type,
		Target:               spec.Target,
		VerificationQuestion: spec.VerificationQuestion,
		VerificationAnswer:   spec.VerificationAnswer,
		SubmissionsNeeded:    spec.Quota(),
		Status:               curation.TaskOpen,
		CreatedBy:            "operator/test",
		CreatedAt:            now.Unix(),
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func agentKarma(t *testing.T, store *Store, handle string) float64 {
	t.Helper()
	agent, err := store.Agent(context.Background(), handle)
	if err != nil {
		t.Fatalf("Agent(%s): %v", handle, err)
	}
	return agent.Karma
}

// --- Verification lifecycle ---

func TestBeginVerificationCreatesAndRefreshes(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	created, err := store.BeginVerification(ctx, "finch", "curia-verify-11111111")
	if err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	if !created {
		t.Error("first BeginVerification: created = false, want true")
	}

	// A second begin refreshes the code without creating a new row.
	created, err = store.BeginVerification(ctx, "finch", "curia-verify-22222222")
	if err != nil {
		t.Fatalf("second BeginVerification: %v", err)
	}
	if created {
		t.Error("second BeginVerification: created = true, want false")
	}

	agent, err := store.Agent(ctx, "finch")
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	if agent.VerificationCode != "curia-verify-22222222" {
		t.Errorf("code = %q, want the refreshed one", agent.VerificationCode)
	}
	if agent.Verified {
		t.Error("agent verified before MarkVerified")
	}
}

func TestMarkVerifiedUnknownAgent(t *testing.T) {
	store, _ := openTestStore(t)

	err := store.MarkVerified(context.Background(), "nobody", engineTestEpoch)
	if !errors.Is(err, curation.ErrAgentNotFound) {
		t.Errorf("MarkVerified(unknown) = %v, want ErrAgentNotFound", err)
	}
}

func TestBeginVerificationKeepsVerifiedState(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "finch", 25)

	// Token renewal: a fresh begin must not reset karma or the
	// verified flag.
	if _, err := store.BeginVerification(ctx, "finch", "curia-verify-33333333"); err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}

	agent, err := store.Agent(ctx, "finch")
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	if !agent.Verified {
		t.Error("verified flag lost on re-begin")
	}
	if agent.Karma != 25 {
		t.Errorf("karma = %g after re-begin, want 25", agent.Karma)
	}
}

// --- Task creation ---

func TestCreateTaskDuplicateID(t *testing.T) {
	store, _ := openTestStore(t)

	task := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/1"})

	err := store.CreateTask(context.Background(), task)
	if !errors.Is(err, curation.ErrInvalidTaskSpec) {
		t.Errorf("duplicate CreateTask = %v, want ErrInvalidTaskSpec", err)
	}
}

func TestListOpenTasksForAgentExcludesSubmitted(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "finch", 0)

	first := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/1"})
	fakeClock.Advance(time.Second)
	second := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/2"})

	if _, err := store.Submit(ctx, first.ID, "finch", "signal", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tasks, err := store.ListOpenTasksForAgent(ctx, "finch")
	if err != nil {
		t.Fatalf("ListOpenTasksForAgent: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != second.ID {
		t.Fatalf("open tasks = %+v, want only %s", tasks, second.ID)
	}
}

// --- Submission rules ---

func TestSubmitUnverifiedAgent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	task := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/1"})

	// Registered but never verified.
	if _, err := store.BeginVerification(ctx, "finch", "curia-verify-44444444"); err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	if _, err := store.Submit(ctx, task.ID, "finch", "signal", ""); !errors.Is(err, curation.ErrNotVerified) {
		t.Errorf("unverified submit = %v, want ErrNotVerified", err)
	}

	// Never registered at all.
	if _, err := store.Submit(ctx, task.ID, "stranger", "signal", ""); !errors.Is(err, curation.ErrNotVerified) {
		t.Errorf("unknown-agent submit = %v, want ErrNotVerified", err)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "finch", 0)
	task := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/1"})

	if _, err := store.Submit(ctx, task.ID, "finch", "signal", ""); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := store.Submit(ctx, task.ID, "finch", "noise", "")
	if !errors.Is(err, curation.ErrDuplicateSubmission) {
		t.Errorf("second submit = %v, want ErrDuplicateSubmission", err)
	}
}

func TestStoreSubmitUnknownTask(t *testing.T) {
	store, _ := openTestStore(t)

	seedAgent(t, store, "finch", 0)
	_, err := store.Submit(context.Background(), "task-000000000000", "finch", "signal", "")
	if !errors.Is(err, curation.ErrTaskNotFound) {
		t.Errorf("Submit(unknown task) = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskClosesExactlyAtQuota(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b", "c", "d"} {
		seedAgent(t, store, handle, 0)
	}
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/t/1",
		SubmissionsNeeded: 3,
	})

	// Submissions below the quota leave the task open.
	for _, handle := range []string{"a", "b"} {
		outcome, err := store.Submit(ctx, task.ID, handle, "signal", "")
		if err != nil {
			t.Fatalf("Submit(%s): %v", handle, err)
		}
		if outcome.Status != curation.TaskOpen {
			t.Fatalf("after %s: status = %s, want open", handle, outcome.Status)
		}
		fakeClock.Advance(time.Second)
	}

	// The quota-reaching submission evaluates and closes.
	outcome, err := store.Submit(ctx, task.ID, "c", "signal", "")
	if err != nil {
		t.Fatalf("Submit(c): %v", err)
	}
	if outcome.Status != curation.TaskClosed {
		t.Fatalf("after quota: status = %s, want closed", outcome.Status)
	}
	if outcome.Result == nil || outcome.Result.Winner != "signal" {
		t.Fatalf("result = %+v, want winner signal", outcome.Result)
	}

	// A late submission bounces off the terminal state.
	if _, err := store.Submit(ctx, task.ID, "d", "signal", ""); !errors.Is(err, curation.ErrTaskClosed) {
		t.Errorf("late submit = %v, want ErrTaskClosed", err)
	}
}

// --- Consensus weighting ---

func TestWeightedConsensusAtBoundary(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	// trusted (weight 2) + one newcomer agree: 3 of total 5 = 0.60,
	// exactly at the threshold, so the task closes.
	seedAgent(t, store, "trusted", 80)
	seedAgent(t, store, "n1", 0)
	seedAgent(t, store, "n2", 0)
	seedAgent(t, store, "n3", 0)

	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/t/1",
		SubmissionsNeeded: 4,
	})

	var outcome *SubmitOutcome
	var err error
	for _, vote := range []struct{ handle, value string }{
		{"trusted", "signal"},
		{"n1", "signal"},
		{"n2", "noise"},
		{"n3", "spam"},
	} {
		outcome, err = store.Submit(ctx, task.ID, vote.handle, vote.value, "")
		if err != nil {
			t.Fatalf("Submit(%s): %v", vote.handle, err)
		}
		fakeClock.Advance(time.Second)
	}

	if outcome.Status != curation.TaskClosed {
		t.Fatalf("status = %s, want closed at exactly 0.60 agreement", outcome.Status)
	}
	if outcome.Result.Winner != "signal" {
		t.Errorf("winner = %q, want signal", outcome.Result.Winner)
	}
	if outcome.Result.WinningWeight != 3 || outcome.Result.TotalWeight != 5 {
		t.Errorf("weights = %d/%d, want 3/5", outcome.Result.WinningWeight, outcome.Result.TotalWeight)
	}
	if outcome.Result.Ratio != 0.6 {
		t.Errorf("ratio = %g, want 0.6", outcome.Result.Ratio)
	}
}

func TestUnweightedSplitDisputes(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	// Four newcomers, two camps of two: best share 0.5 < 0.60.
	for _, handle := range []string{"a", "b", "c", "d"} {
		seedAgent(t, store, handle, 0)
	}
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/t/1",
		SubmissionsNeeded: 4,
	})

	var outcome *SubmitOutcome
	var err error
	for _, vote := range []struct{ handle, value string }{
		{"a", "signal"}, {"b", "signal"}, {"c", "noise"}, {"d", "noise"},
	} {
		outcome, err = store.Submit(ctx, task.ID, vote.handle, vote.value, "")
		if err != nil {
			t.Fatalf("Submit(%s): %v", vote.handle, err)
		}
		fakeClock.Advance(time.Second)
	}

	if outcome.Status != curation.TaskDisputed {
		t.Fatalf("status = %s, want disputed", outcome.Status)
	}
	if outcome.Dispute == nil {
		t.Fatal("disputed outcome carries no dispute event")
	}
	if outcome.Dispute.Ratio != 0.5 {
		t.Errorf("dispute ratio = %g, want 0.5", outcome.Dispute.Ratio)
	}
	if outcome.Dispute.Submissions != 4 {
		t.Errorf("dispute submissions = %d, want 4", outcome.Dispute.Submissions)
	}

	// No karma credit on dispute.
	for _, handle := range []string{"a", "b", "c", "d"} {
		if got := agentKarma(t, store, handle); got != 0 {
			t.Errorf("karma(%s) = %g after dispute, want 0", handle, got)
		}
	}

	// And no consensus result.
	if _, err := store.Result(ctx, task.ID); !errors.Is(err, curation.ErrConsensusDisputed) {
		t.Errorf("Result(disputed) = %v, want ErrConsensusDisputed", err)
	}
}

func TestCanonicalizationGroupsVotes(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b", "c"} {
		seedAgent(t, store, handle, 0)
	}
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/t/1",
		SubmissionsNeeded: 3,
	})

	var outcome *SubmitOutcome
	var err error
	for _, vote := range []struct{ handle, value string }{
		{"a", "Signal "}, {"b", "SIGNAL"}, {"c", "noise"},
	} {
		outcome, err = store.Submit(ctx, task.ID, vote.handle, vote.value, "")
		if err != nil {
			t.Fatalf("Submit(%s): %v", vote.handle, err)
		}
		fakeClock.Advance(time.Second)
	}

	if outcome.Status != curation.TaskClosed {
		t.Fatalf("status = %s, want closed (2/3 agreement)", outcome.Status)
	}
	if outcome.Result.Winner != "signal" {
		t.Errorf("winner = %q, want canonical form signal", outcome.Result.Winner)
	}
}

// --- Karma credit ---

func TestConsensusCreditsMatchingAgentsOnly(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b", "c"} {
		seedAgent(t, store, handle, 0)
	}

	// summarize is worth 10 points and requires a comprehension
	// check; the quota is widened so three agents vote.
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:                 curation.TaskSummarize,
		Target:               "https://example.com/t/1",
		VerificationQuestion: "how many replies does the thread have?",
		VerificationAnswer:   "14",
		SubmissionsNeeded:    3,
	})

	for _, vote := range []struct{ handle, value string }{
		{"a", "thread argues the patch is wrong"},
		{"b", "thread argues the patch is wrong"},
		{"c", "thread praises the patch"},
	} {
		if _, err := store.Submit(ctx, task.ID, vote.handle, vote.value, "14"); err != nil {
			t.Fatalf("Submit(%s): %v", vote.handle, err)
		}
		fakeClock.Advance(time.Second)
	}

	if got := agentKarma(t, store, "a"); got != 10 {
		t.Errorf("karma(a) = %g, want 10", got)
	}
	if got := agentKarma(t, store, "b"); got != 10 {
		t.Errorf("karma(b) = %g, want 10", got)
	}
	if got := agentKarma(t, store, "c"); got != 0 {
		t.Errorf("karma(c) = %g, want 0 for the losing vote", got)
	}
}

func TestFailedCheckCountsButIsExcluded(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b", "c"} {
		seedAgent(t, store, handle, 0)
	}
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:                 curation.TaskExtract,
		Target:               "https://example.com/t/1",
		VerificationQuestion: "who wrote the root post?",
		VerificationAnswer:   "mallory",
	})
	if task.SubmissionsNeeded != 3 {
		t.Fatalf("extract default quota = %d, want 3", task.SubmissionsNeeded)
	}

	// b fails the check but votes with the majority value: the
	// submission fills the quota yet earns nothing and its vote is
	// not in the tally.
	outcome, err := store.Submit(ctx, task.ID, "a", "https://example.com/source", "mallory")
	if err != nil {
		t.Fatalf("Submit(a): %v", err)
	}
	fakeClock.Advance(time.Second)

	outcome, err = store.Submit(ctx, task.ID, "b", "https://example.com/source", "wrong")
	if err != nil {
		t.Fatalf("Submit(b): %v", err)
	}
	if outcome.Submission.Correct {
		t.Error("failed check stored as correct")
	}
	fakeClock.Advance(time.Second)

	outcome, err = store.Submit(ctx, task.ID, "c", "https://example.com/source", "mallory")
	if err != nil {
		t.Fatalf("Submit(c): %v", err)
	}

	if outcome.Status != curation.TaskClosed {
		t.Fatalf("status = %s, want closed", outcome.Status)
	}
	// Tally ran over a and c only: 2/2 agreement.
	if outcome.Result.TotalWeight != 2 {
		t.Errorf("total weight = %d, want 2 (failed check excluded)", outcome.Result.TotalWeight)
	}

	if got := agentKarma(t, store, "a"); got != 3 {
		t.Errorf("karma(a) = %g, want 3", got)
	}
	if got := agentKarma(t, store, "b"); got != 0 {
		t.Errorf("karma(b) = %g, want 0 despite matching the winner", got)
	}
	if got := agentKarma(t, store, "c"); got != 3 {
		t.Errorf("karma(c) = %g, want 3", got)
	}
}

func TestAllChecksFailedDisputes(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b", "c"} {
		seedAgent(t, store, handle, 0)
	}
	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:                 curation.TaskExtract,
		Target:               "https://example.com/t/1",
		VerificationQuestion: "who wrote the root post?",
		VerificationAnswer:   "mallory",
	})

	var outcome *SubmitOutcome
	var err error
	for _, handle := range []string{"a", "b", "c"} {
		outcome, err = store.Submit(ctx, task.ID, handle, "https://example.com/source", "wrong")
		if err != nil {
			t.Fatalf("Submit(%s): %v", handle, err)
		}
		fakeClock.Advance(time.Second)
	}

	// Quota reached with an empty tally: disputed, nobody credited.
	if outcome.Status != curation.TaskDisputed {
		t.Fatalf("status = %s, want disputed when every check failed", outcome.Status)
	}
	if outcome.Dispute.Ratio != 0 {
		t.Errorf("dispute ratio = %g, want 0 for empty tally", outcome.Dispute.Ratio)
	}
}

func TestTieBreaksToEarliestSubmission(t *testing.T) {
	// Ratio 0.5 makes a two-way tie reach the threshold, which is
	// where the submission-time tie-break decides.
	store, fakeClock := openTestStoreRatio(t, 0.5)
	ctx := context.Background()

	seedAgent(t, store, "early", 0)
	seedAgent(t, store, "late", 0)

	task := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTag,
		Target:            "https://example.com/t/1",
		SubmissionsNeeded: 2,
	})

	if _, err := store.Submit(ctx, task.ID, "early", "kernel", ""); err != nil {
		t.Fatalf("Submit(early): %v", err)
	}
	fakeClock.Advance(time.Second)

	outcome, err := store.Submit(ctx, task.ID, "late", "userspace", "")
	if err != nil {
		t.Fatalf("Submit(late): %v", err)
	}

	if outcome.Status != curation.TaskClosed {
		t.Fatalf("status = %s, want closed at ratio 0.5", outcome.Status)
	}
	if outcome.Result.Winner != "kernel" {
		t.Errorf("winner = %q, want the earlier submission's value", outcome.Result.Winner)
	}

	// Tag tasks are worth 0.5: only the tie-break winner earns it.
	if got := agentKarma(t, store, "early"); got != 0.5 {
		t.Errorf("karma(early) = %g, want 0.5", got)
	}
	if got := agentKarma(t, store, "late"); got != 0 {
		t.Errorf("karma(late) = %g, want 0", got)
	}
}

// --- Decay ---

func TestDecayAppliesOncePerPeriod(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "finch", 40)

	report, err := store.RunDecay(ctx, "2026-W11", 0.8)
	if err != nil {
		t.Fatalf("RunDecay: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("processed = %d, want 1", report.Processed)
	}
	if got := agentKarma(t, store, "finch"); got != 32 {
		t.Errorf("karma = %g after decay, want 32", got)
	}

	// Same period again: a no-op.
	report, err = store.RunDecay(ctx, "2026-W11", 0.8)
	if err != nil {
		t.Fatalf("second RunDecay: %v", err)
	}
	if report.Skipped != 1 || report.Processed != 0 {
		t.Errorf("second run: processed=%d skipped=%d, want 0/1", report.Processed, report.Skipped)
	}
	if got := agentKarma(t, store, "finch"); got != 32 {
		t.Errorf("karma = %g after repeat decay, want 32 unchanged", got)
	}

	// A new period applies again, rounded to two decimals.
	if _, err := store.RunDecay(ctx, "2026-W12", 0.8); err != nil {
		t.Fatalf("third RunDecay: %v", err)
	}
	if got := agentKarma(t, store, "finch"); got != 25.6 {
		t.Errorf("karma = %g after second period, want 25.6", got)
	}
}

func TestDecaySkipsUnverifiedRegistrations(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "active", 10)
	if _, err := store.BeginVerification(ctx, "pending", "curia-verify-55555555"); err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}

	report, err := store.RunDecay(ctx, "2026-W11", 0.8)
	if err != nil {
		t.Fatalf("RunDecay: %v", err)
	}
	// The pending registration has zero karma; decay still visits it
	// without failing.
	if report.Failed != 0 {
		t.Errorf("failed = %d, want 0", report.Failed)
	}
	if got := agentKarma(t, store, "active"); got != 8 {
		t.Errorf("karma(active) = %g, want 8", got)
	}
}

// --- Queries ---

func TestFlaggedTasksOrdering(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "a", 0)
	seedAgent(t, store, "b", 0)

	// Stale open task, created at the epoch.
	stale := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/stale"})

	// Disputed task: split vote on a quota-2 task.
	fakeClock.Advance(time.Hour)
	disputed := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/disputed",
		SubmissionsNeeded: 2,
	})
	if _, err := store.Submit(ctx, disputed.ID, "a", "signal", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := store.Submit(ctx, disputed.ID, "b", "noise", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Fresh open task, after the staleness cutoff.
	fakeClock.Advance(48 * time.Hour)
	fresh := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/fresh"})

	staleBefore := fakeClock.Now().Add(-24 * time.Hour)
	flagged, err := store.FlaggedTasks(ctx, staleBefore)
	if err != nil {
		t.Fatalf("FlaggedTasks: %v", err)
	}

	if len(flagged) != 2 {
		t.Fatalf("flagged = %d entries, want 2 (disputed + stale)", len(flagged))
	}
	if flagged[0].Task.ID != disputed.ID || flagged[0].Reason != FlagDisputed {
		t.Errorf("flagged[0] = %s/%s, want disputed task first", flagged[0].Task.ID, flagged[0].Reason)
	}
	if flagged[1].Task.ID != stale.ID || flagged[1].Reason != FlagStale {
		t.Errorf("flagged[1] = %s/%s, want stale task", flagged[1].Task.ID, flagged[1].Reason)
	}
	for _, entry := range flagged {
		if entry.Task.ID == fresh.ID {
			t.Error("fresh open task should not be flagged")
		}
	}
}

func TestLeaderboardVerifiedOnlyOrdered(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, store, "low", 5)
	seedAgent(t, store, "high", 60)
	seedAgent(t, store, "mid", 20)
	if _, err := store.BeginVerification(ctx, "pending", "curia-verify-66666666"); err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	setKarma(t, store, "pending", 100)

	rows, err := store.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}

	want := []string{"high", "mid", "low"}
	if len(rows) != len(want) {
		t.Fatalf("leaderboard rows = %d, want %d (unverified excluded)", len(rows), len(want))
	}
	for i, handle := range want {
		if rows[i].Handle != handle {
			t.Errorf("rows[%d] = %s, want %s", i, rows[i].Handle, handle)
		}
	}
	if rows[0].Tier != "trusted" || rows[1].Tier != "contributor" || rows[2].Tier != "newcomer" {
		t.Errorf("tiers = %s/%s/%s, want trusted/contributor/newcomer",
			rows[0].Tier, rows[1].Tier, rows[2].Tier)
	}
}

func TestResultForOpenTask(t *testing.T) {
	store, _ := openTestStore(t)

	task := mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/t/1"})

	result, err := store.Result(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Result(open) = %v, want nil error", err)
	}
	if result != nil {
		t.Errorf("result = %+v for open task, want nil", result)
	}
}

// --- Audit dump ---

func TestBuildAuditDumpFinishedTasksOnly(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	for _, handle := range []string{"a", "b"} {
		seedAgent(t, store, handle, 0)
	}

	closed := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/closed",
		SubmissionsNeeded: 2,
	})
	if _, err := store.Submit(ctx, closed.ID, "a", "signal", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := store.Submit(ctx, closed.ID, "b", "signal", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fakeClock.Advance(time.Second)
	disputed := mustCreateTask(t, store, curation.TaskSpec{
		Type:              curation.TaskTriage,
		Target:            "https://example.com/disputed",
		SubmissionsNeeded: 2,
	})
	if _, err := store.Submit(ctx, disputed.ID, "a", "signal", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := store.Submit(ctx, disputed.ID, "b", "noise", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fakeClock.Advance(time.Second)
	mustCreateTask(t, store, curation.TaskSpec{Type: curation.TaskTriage, Target: "https://example.com/open"})

	dump, err := store.BuildAuditDump(ctx)
	if err != nil {
		t.Fatalf("BuildAuditDump: %v", err)
	}

	if dump.GeneratedAt != fakeClock.Now().Unix() {
		t.Errorf("generated_at = %d, want clock time", dump.GeneratedAt)
	}
	if len(dump.Tasks) != 2 {
		t.Fatalf("dump tasks = %d, want 2 (open excluded)", len(dump.Tasks))
	}

	for _, entry := range dump.Tasks {
		switch entry.Task.ID {
		case closed.ID:
			if entry.Consensus == nil {
				t.Error("closed task missing consensus result in dump")
			}
			if len(entry.Submissions) != 2 {
				t.Errorf("closed task submissions = %d, want 2", len(entry.Submissions))
			}
		case disputed.ID:
			if entry.Consensus != nil {
				t.Error("disputed task carries a consensus result in dump")
			}
		default:
			t.Errorf("unexpected task %s in dump", entry.Task.ID)
		}
	}
}
