// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/curia-foundation/curia/lib/clock"
	"github.com/curia-foundation/curia/lib/consensus"
	"github.com/curia-foundation/curia/lib/curation"
	"github.com/curia-foundation/curia/lib/karma"
	"github.com/curia-foundation/curia/lib/sqlitepool"
)

// Store is the engine's SQLite persistence layer: agents, tasks,
// submissions, and consensus results.
//
// The submit path is the one place where correctness depends on
// transaction shape. Submit runs duplicate check, insert, quota
// count, consensus evaluation, status transition, and karma credit
// inside a single IMMEDIATE transaction: of two concurrently arriving
// quota-reaching submissions, one loses the write lock race and sees
// the task already closed. Everything else is ordinary single-writer
// SQLite traffic through the pool.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger

	// ratio is the consensus threshold applied at evaluation time:
	// the winning value's share of total weight must be at least
	// this for the task to close rather than dispute.
	ratio float64
}

// StoreConfig holds the parameters for opening the engine store.
type StoreConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize is the connection pool size. Defaults to 4 if zero
	// or negative.
	PoolSize int

	// ConsensusRatio is the agreement threshold for closing a task.
	// Required, in (0, 1].
	ConsensusRatio float64

	// Clock provides submission timestamps and closure times.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// schema is the engine's table set. Uniqueness rules the domain
// depends on (one agent per handle, one submission per task+agent,
// one result per task) are primary keys; everything else is checked
// in Go so callers get domain errors instead of constraint text.
const schema = `
	CREATE TABLE IF NOT EXISTS agents (
		handle            TEXT PRIMARY KEY,
		verification_code TEXT NOT NULL DEFAULT '',
		verified          INTEGER NOT NULL DEFAULT 0,
		verified_at       INTEGER NOT NULL DEFAULT 0,
		karma             REAL NOT NULL DEFAULT 0,
		decay_period      TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id                    TEXT PRIMARY KEY,
		type                  TEXT NOT NULL,
		target                TEXT NOT NULL,
		verification_question TEXT NOT NULL DEFAULT '',
		verification_answer   TEXT NOT NULL DEFAULT '',
		submissions_needed    INTEGER NOT NULL,
		status                TEXT NOT NULL DEFAULT 'open',
		created_by            TEXT NOT NULL,
		created_at            INTEGER NOT NULL,
		closed_at             INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);

	CREATE TABLE IF NOT EXISTS submissions (
		task_id      TEXT NOT NULL,
		agent        TEXT NOT NULL,
		payload      TEXT NOT NULL,
		canonical    TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		correct      INTEGER NOT NULL,
		PRIMARY KEY (task_id, agent)
	);

	CREATE TABLE IF NOT EXISTS consensus_results (
		task_id        TEXT PRIMARY KEY,
		winner         TEXT NOT NULL,
		winning_weight INTEGER NOT NULL,
		total_weight   INTEGER NOT NULL,
		ratio          REAL NOT NULL,
		closed_at      INTEGER NOT NULL
	);
`

// OpenStore opens (creating if needed) the engine database and
// applies the schema.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
	}
	if cfg.ConsensusRatio <= 0 || cfg.ConsensusRatio > 1 {
		return nil, fmt.Errorf("store: consensus ratio %g outside (0, 1]", cfg.ConsensusRatio)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	store := &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		ratio:  cfg.ConsensusRatio,
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// --- Agents ---

// BeginVerification registers the handle if unknown and stores a
// fresh pending verification code, replacing any earlier one. Returns
// whether the agent row was created by this call.
func (s *Store) BeginVerification(ctx context.Context, handle, code string) (created bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: begin verification: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("store: begin verification: %w", err)
	}
	defer endTransaction(&err)

	exists := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM agents WHERE handle = ?", &sqlitex.ExecOptions{
		Args: []any{handle},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: begin verification: %w", err)
	}

	if exists {
		err = sqlitex.Execute(conn,
			"UPDATE agents SET verification_code = ? WHERE handle = ?",
			&sqlitex.ExecOptions{Args: []any{code, handle}})
		if err != nil {
			return false, fmt.Errorf("store: begin verification: %w", err)
		}
		return false, nil
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO agents (handle, verification_code, created_at) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{handle, code, s.clock.Now().Unix()}})
	if err != nil {
		return false, fmt.Errorf("store: begin verification: %w", err)
	}
	return true, nil
}

// MarkVerified flips the agent's verified flag and records the
// confirmation time. The pending code stays on the row so a later
// renewal walks the same begin/confirm path.
func (s *Store) MarkVerified(ctx context.Context, handle string, at time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: mark verified: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE agents SET verified = 1, verified_at = ? WHERE handle = ?",
		&sqlitex.ExecOptions{Args: []any{at.Unix(), handle}})
	if err != nil {
		return fmt.Errorf("store: mark verified: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: mark verified %q: %w", handle, curation.ErrAgentNotFound)
	}
	return nil
}

// Agent loads one agent row, pending verification code included.
func (s *Store) Agent(ctx context.Context, handle string) (*curation.Agent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load agent: %w", err)
	}
	defer s.pool.Put(conn)

	return loadAgent(conn, handle)
}

func loadAgent(conn *sqlite.Conn, handle string) (*curation.Agent, error) {
	var agent *curation.Agent
	err := sqlitex.Execute(conn,
		`SELECT handle, verification_code, verified, verified_at, karma, decay_period, created_at
		 FROM agents WHERE handle = ?`,
		&sqlitex.ExecOptions{
			Args: []any{handle},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				agent = &curation.Agent{
					Handle:           stmt.ColumnText(0),
					VerificationCode: stmt.ColumnText(1),
					Verified:         stmt.ColumnInt(2) != 0,
					VerifiedAt:       stmt.ColumnInt64(3),
					Karma:            stmt.ColumnFloat(4),
					DecayPeriod:      stmt.ColumnText(5),
					CreatedAt:        stmt.ColumnInt64(6),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load agent: %w", err)
	}
	if agent == nil {
		return nil, fmt.Errorf("store: agent %q: %w", handle, curation.ErrAgentNotFound)
	}
	return agent, nil
}

// AgentCounts returns the total and verified agent counts for the
// info response.
func (s *Store) AgentCounts(ctx context.Context) (total, verified int, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("store: agent counts: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"SELECT COUNT(*), COALESCE(SUM(verified), 0) FROM agents",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt(0)
				verified = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return 0, 0, fmt.Errorf("store: agent counts: %w", err)
	}
	return total, verified, nil
}

// LeaderboardRow is one standings entry: verified agents only, tier
// derived from the current score.
type LeaderboardRow struct {
	Handle string     `json:"handle"`
	Karma  float64    `json:"karma"`
	Tier   karma.Tier `json:"tier"`
}

// Leaderboard returns the top verified agents by karma, highest
// first, handle as tie-break. The caller caps limit at the policy
// maximum.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	defer s.pool.Put(conn)

	var rows []LeaderboardRow
	err = sqlitex.Execute(conn,
		`SELECT handle, karma FROM agents WHERE verified = 1
		 ORDER BY karma DESC, handle ASC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				score := stmt.ColumnFloat(1)
				rows = append(rows, LeaderboardRow{
					Handle: stmt.ColumnText(0),
					Karma:  score,
					Tier:   karma.TierFor(score),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	return rows, nil
}

// DecayReport summarizes one decay run.
type DecayReport struct {
	Period    string `json:"period"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// RunDecay applies one period's karma decay to every agent not yet
// decayed for that period. Each agent commits in its own transaction:
// a failure on one is logged and counted without aborting the rest,
// and a crashed run picks up where it stopped because completed
// agents carry the period marker.
func (s *Store) RunDecay(ctx context.Context, period string, factor float64) (DecayReport, error) {
	report := DecayReport{Period: period}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return report, fmt.Errorf("store: decay: %w", err)
	}

	var handles []string
	err = sqlitex.Execute(conn, "SELECT handle FROM agents ORDER BY handle", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			handles = append(handles, stmt.ColumnText(0))
			return nil
		},
	})
	s.pool.Put(conn)
	if err != nil {
		return report, fmt.Errorf("store: decay: listing agents: %w", err)
	}

	for _, handle := range handles {
		applied, err := s.decayAgent(ctx, handle, period, factor)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("decay failed for agent",
				"handle", handle,
				"period", period,
				"error", err,
			)
		case applied:
			report.Processed++
		default:
			report.Skipped++
		}
	}

	return report, nil
}

// decayAgent applies decay to a single agent in its own transaction.
// Returns false without changes when the agent's marker already names
// the period.
func (s *Store) decayAgent(ctx context.Context, handle, period string, factor float64) (applied bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, err
	}
	defer endTransaction(&err)

	var score float64
	var marker string
	found := false
	err = sqlitex.Execute(conn,
		"SELECT karma, decay_period FROM agents WHERE handle = ?",
		&sqlitex.ExecOptions{
			Args: []any{handle},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				score = stmt.ColumnFloat(0)
				marker = stmt.ColumnText(1)
				found = true
				return nil
			},
		})
	if err != nil {
		return false, err
	}
	if !found {
		// Deleted between listing and processing; nothing to decay.
		return false, nil
	}
	if marker == period {
		return false, nil
	}

	err = sqlitex.Execute(conn,
		"UPDATE agents SET karma = ?, decay_period = ? WHERE handle = ?",
		&sqlitex.ExecOptions{Args: []any{karma.Decay(score, factor), period, handle}})
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- Tasks ---

// CreateTask inserts a new open task. The ID is content-derived, so a
// duplicate means the same creator filed the same work item within
// the same second; that surfaces as an invalid-spec error rather than
// silently returning the existing task.
func (s *Store) CreateTask(ctx context.Context, task *curation.Task) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	defer endTransaction(&err)

	exists := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM tasks WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{task.ID},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: task %s already exists", curation.ErrInvalidTaskSpec, task.ID)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO tasks (id, type, target, verification_question, verification_answer,
		 submissions_needed, status, created_by, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			task.ID,
			string(task.Type),
			task.Target,
			task.VerificationQuestion,
			task.VerificationAnswer,
			task.SubmissionsNeeded,
			string(task.Status),
			task.CreatedBy,
			task.CreatedAt,
			task.ClosedAt,
		}})
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// Task loads one task by ID.
func (s *Store) Task(ctx context.Context, id string) (*curation.Task, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load task: %w", err)
	}
	defer s.pool.Put(conn)

	return loadTask(conn, id)
}

const taskColumns = `id, type, target, verification_question, verification_answer,
	submissions_needed, status, created_by, created_at, closed_at`

func loadTask(conn *sqlite.Conn, id string) (*curation.Task, error) {
	var task *curation.Task
	err := sqlitex.Execute(conn,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				task = scanTask(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("store: task %q: %w", id, curation.ErrTaskNotFound)
	}
	return task, nil
}

// scanTask reads one task row. Column order must match taskColumns.
func scanTask(stmt *sqlite.Stmt) *curation.Task {
	return &curation.Task{
		ID:                   stmt.ColumnText(0),
		Type:                 curation.TaskType(stmt.ColumnText(1)),
		Target:               stmt.ColumnText(2),
		VerificationQuestion: stmt.ColumnText(3),
		VerificationAnswer:   stmt.ColumnText(4),
		SubmissionsNeeded:    stmt.ColumnInt(5),
		Status:               curation.TaskStatus(stmt.ColumnText(6)),
		CreatedBy:            stmt.ColumnText(7),
		CreatedAt:            stmt.ColumnInt64(8),
		ClosedAt:             stmt.ColumnInt64(9),
	}
}

// TaskFilter selects tasks for operator listings. Zero fields are not
// applied.
type TaskFilter struct {
	Status curation.TaskStatus
	Type   curation.TaskType
	Limit  int
}

// ListTasks returns tasks matching the filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]curation.Task, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT " + taskColumns + " FROM tasks"
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	for i, condition := range conditions {
		if i == 0 {
			query += " WHERE " + condition
		} else {
			query += " AND " + condition
		}
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var tasks []curation.Task
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			tasks = append(tasks, *scanTask(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

// ListOpenTasksForAgent returns open tasks the agent has not yet
// submitted to, oldest first: the agent's work queue.
func (s *Store) ListOpenTasksForAgent(ctx context.Context, handle string) ([]curation.Task, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list open tasks: %w", err)
	}
	defer s.pool.Put(conn)

	var tasks []curation.Task
	err = sqlitex.Execute(conn,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open'
		   AND id NOT IN (SELECT task_id FROM submissions WHERE agent = ?)
		 ORDER BY created_at ASC, id ASC`,
		&sqlitex.ExecOptions{
			Args: []any{handle},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tasks = append(tasks, *scanTask(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list open tasks: %w", err)
	}
	return tasks, nil
}

// FlaggedTask is one review-queue entry: a disputed task, or an open
// task older than the staleness window.
type FlaggedTask struct {
	Task   curation.Task `json:"task"`
	Reason string        `json:"reason"`
}

// Flagged reasons.
const (
	FlagDisputed = "disputed"
	FlagStale    = "stale"
)

// FlaggedTasks returns the operator review queue: every disputed task
// (newest dispute first), then open tasks created at or before
// staleBefore (oldest first).
func (s *Store) FlaggedTasks(ctx context.Context, staleBefore time.Time) ([]FlaggedTask, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: flagged tasks: %w", err)
	}
	defer s.pool.Put(conn)

	var flagged []FlaggedTask
	err = sqlitex.Execute(conn,
		"SELECT "+taskColumns+" FROM tasks WHERE status = 'disputed' ORDER BY closed_at DESC, id ASC",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flagged = append(flagged, FlaggedTask{Task: *scanTask(stmt), Reason: FlagDisputed})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: flagged tasks: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'open' AND created_at <= ?
		 ORDER BY created_at ASC, id ASC`,
		&sqlitex.ExecOptions{
			Args: []any{staleBefore.Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flagged = append(flagged, FlaggedTask{Task: *scanTask(stmt), Reason: FlagStale})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: flagged tasks: %w", err)
	}
	return flagged, nil
}

// TaskCounts holds per-status task totals.
type TaskCounts struct {
	Open     int `json:"open"`
	Closed   int `json:"closed"`
	Disputed int `json:"disputed"`
}

// CountTasks returns per-status task totals.
func (s *Store) CountTasks(ctx context.Context) (TaskCounts, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("store: count tasks: %w", err)
	}
	defer s.pool.Put(conn)

	var counts TaskCounts
	err = sqlitex.Execute(conn,
		"SELECT status, COUNT(*) FROM tasks GROUP BY status",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				switch curation.TaskStatus(stmt.ColumnText(0)) {
				case curation.TaskOpen:
					counts.Open = stmt.ColumnInt(1)
				case curation.TaskClosed:
					counts.Closed = stmt.ColumnInt(1)
				case curation.TaskDisputed:
					counts.Disputed = stmt.ColumnInt(1)
				}
				return nil
			},
		})
	if err != nil {
		return TaskCounts{}, fmt.Errorf("store: count tasks: %w", err)
	}
	return counts, nil
}

// TaskSubmissions returns a task's submissions in submission order
// (agent handle as tie-break).
func (s *Store) TaskSubmissions(ctx context.Context, taskID string) ([]curation.Submission, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: task submissions: %w", err)
	}
	defer s.pool.Put(conn)

	return loadSubmissions(conn, taskID)
}

func loadSubmissions(conn *sqlite.Conn, taskID string) ([]curation.Submission, error) {
	var submissions []curation.Submission
	err := sqlitex.Execute(conn,
		`SELECT task_id, agent, payload, canonical, submitted_at, correct
		 FROM submissions WHERE task_id = ?
		 ORDER BY submitted_at ASC, agent ASC`,
		&sqlitex.ExecOptions{
			Args: []any{taskID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				submissions = append(submissions, curation.Submission{
					TaskID:      stmt.ColumnText(0),
					Agent:       stmt.ColumnText(1),
					Payload:     stmt.ColumnText(2),
					Canonical:   stmt.ColumnText(3),
					SubmittedAt: stmt.ColumnInt64(4),
					Correct:     stmt.ColumnInt(5) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: task submissions: %w", err)
	}
	return submissions, nil
}

// Result returns the consensus result for a closed task. Disputed
// tasks fail ErrConsensusDisputed: their quota was reached but no
// value cleared the threshold, so no result row exists. Open tasks
// return nil; evaluation has not happened yet.
func (s *Store) Result(ctx context.Context, taskID string) (*curation.ConsensusResult, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load result: %w", err)
	}
	defer s.pool.Put(conn)

	task, err := loadTask(conn, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == curation.TaskDisputed {
		return nil, fmt.Errorf("store: task %s: %w", taskID, curation.ErrConsensusDisputed)
	}
	if task.Status != curation.TaskClosed {
		return nil, nil
	}

	result, err := loadResult(conn, taskID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("store: task %s is closed but has no consensus result", taskID)
	}
	return result, nil
}

func loadResult(conn *sqlite.Conn, taskID string) (*curation.ConsensusResult, error) {
	var result *curation.ConsensusResult
	err := sqlitex.Execute(conn,
		`SELECT task_id, winner, winning_weight, total_weight, ratio, closed_at
		 FROM consensus_results WHERE task_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{taskID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				result = &curation.ConsensusResult{
					TaskID:        stmt.ColumnText(0),
					Winner:        stmt.ColumnText(1),
					WinningWeight: stmt.ColumnInt(2),
					TotalWeight:   stmt.ColumnInt(3),
					Ratio:         stmt.ColumnFloat(4),
					ClosedAt:      stmt.ColumnInt64(5),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load result: %w", err)
	}
	return result, nil
}

// TaskDetail loads a task with its submissions and, for closed tasks,
// the consensus result.
func (s *Store) TaskDetail(ctx context.Context, taskID string) (*curation.Task, []curation.Submission, *curation.ConsensusResult, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store: task detail: %w", err)
	}
	defer s.pool.Put(conn)

	task, err := loadTask(conn, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	submissions, err := loadSubmissions(conn, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	var result *curation.ConsensusResult
	if task.Status == curation.TaskClosed {
		result, err = loadResult(conn, taskID)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return task, submissions, result, nil
}

// --- Submission path ---

// SubmitOutcome reports what a recorded submission did to its task.
type SubmitOutcome struct {
	// Submission is the stored row, canonicalization and check
	// result applied.
	Submission curation.Submission

	// Status is the task's status after this submission: still open,
	// closed by it, or disputed by it.
	Status curation.TaskStatus

	// Result is the consensus result when this submission closed the
	// task.
	Result *curation.ConsensusResult

	// Dispute is the notification event when this submission
	// disputed the task.
	Dispute *disputeEvent
}

// Submit records one agent's submission and, when it is the one that
// reaches the task's quota, evaluates consensus. The duplicate check,
// insert, count, evaluation, status transition, and karma credit all
// run inside one IMMEDIATE transaction.
//
// The answer parameter is checked against the task's verification
// answer when the task carries a check; a failing submission is still
// recorded (it counts toward the quota) but is marked incorrect and
// excluded from the tally.
func (s *Store) Submit(ctx context.Context, taskID, handle, payload, answer string) (outcome *SubmitOutcome, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: submit: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("store: submit: %w", err)
	}
	defer endTransaction(&err)

	agent, err := loadAgent(conn, handle)
	if err != nil {
		if errors.Is(err, curation.ErrAgentNotFound) {
			// A token can outlive its agent row (operator-minted
			// tokens, restored databases). An unknown agent is an
			// unverified one.
			return nil, fmt.Errorf("agent %q: %w", handle, curation.ErrNotVerified)
		}
		return nil, err
	}
	if !agent.Verified {
		return nil, fmt.Errorf("agent %q: %w", handle, curation.ErrNotVerified)
	}

	task, err := loadTask(conn, taskID)
	if err != nil {
		return nil, err
	}
	if task.Terminal() {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, curation.ErrTaskClosed)
	}

	duplicate := false
	err = sqlitex.Execute(conn,
		"SELECT 1 FROM submissions WHERE task_id = ? AND agent = ?",
		&sqlitex.ExecOptions{
			Args: []any{taskID, handle},
			ResultFunc: func(*sqlite.Stmt) error {
				duplicate = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: submit: %w", err)
	}
	if duplicate {
		return nil, fmt.Errorf("task %s, agent %q: %w", taskID, handle, curation.ErrDuplicateSubmission)
	}

	now := s.clock.Now()
	submission := curation.Submission{
		TaskID:      taskID,
		Agent:       handle,
		Payload:     payload,
		Canonical:   curation.CanonicalValue(payload),
		SubmittedAt: now.Unix(),
		Correct:     !task.HasCheck() || curation.AnswerMatches(task.VerificationAnswer, answer),
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO submissions (task_id, agent, payload, canonical, submitted_at, correct)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			submission.TaskID,
			submission.Agent,
			submission.Payload,
			submission.Canonical,
			submission.SubmittedAt,
			boolToInt(submission.Correct),
		}})
	if err != nil {
		return nil, fmt.Errorf("store: submit: %w", err)
	}

	count := 0
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM submissions WHERE task_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{taskID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: submit: %w", err)
	}

	outcome = &SubmitOutcome{
		Submission: submission,
		Status:     curation.TaskOpen,
	}
	if count < task.SubmissionsNeeded {
		return outcome, nil
	}

	if err := s.evaluate(conn, task, now, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// evaluate runs the weighted-majority tally for a task whose quota
// was just reached and applies the outcome: status flip, result row,
// and karma credit on consensus; status flip alone on dispute. Runs
// inside the caller's transaction.
func (s *Store) evaluate(conn *sqlite.Conn, task *curation.Task, now time.Time, outcome *SubmitOutcome) error {
	submissions, err := loadSubmissions(conn, task.ID)
	if err != nil {
		return err
	}

	// Vote weight uses each agent's karma as it stands at evaluation
	// time, before any credit from this task.
	var ballots []consensus.Ballot
	for _, submission := range submissions {
		if !submission.Correct {
			continue
		}
		agent, err := loadAgent(conn, submission.Agent)
		if err != nil {
			return err
		}
		ballots = append(ballots, consensus.Ballot{
			Value:       submission.Canonical,
			Weight:      karma.VoteWeight(agent.Karma),
			SubmittedAt: submission.SubmittedAt,
		})
	}

	tally := consensus.Tally(ballots, s.ratio)

	if tally.Disputed {
		err = sqlitex.Execute(conn,
			"UPDATE tasks SET status = ?, closed_at = ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{string(curation.TaskDisputed), now.Unix(), task.ID}})
		if err != nil {
			return fmt.Errorf("store: evaluate: %w", err)
		}
		outcome.Status = curation.TaskDisputed
		outcome.Dispute = &disputeEvent{
			TaskID:      task.ID,
			TaskType:    string(task.Type),
			Target:      task.Target,
			Ratio:       tally.Ratio,
			Submissions: len(submissions),
			DisputedAt:  now.Unix(),
		}
		return nil
	}

	err = sqlitex.Execute(conn,
		"UPDATE tasks SET status = ?, closed_at = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{string(curation.TaskClosed), now.Unix(), task.ID}})
	if err != nil {
		return fmt.Errorf("store: evaluate: %w", err)
	}

	result := &curation.ConsensusResult{
		TaskID:        task.ID,
		Winner:        tally.Winner,
		WinningWeight: tally.WinningWeight,
		TotalWeight:   tally.TotalWeight,
		Ratio:         tally.Ratio,
		ClosedAt:      now.Unix(),
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO consensus_results (task_id, winner, winning_weight, total_weight, ratio, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			result.TaskID,
			result.Winner,
			result.WinningWeight,
			result.TotalWeight,
			result.Ratio,
			result.ClosedAt,
		}})
	if err != nil {
		return fmt.Errorf("store: evaluate: %w", err)
	}

	// Credit every agreeing agent the task type's point value.
	// Disagreeing agents are recorded, not penalized; incorrect
	// submissions earned nothing by failing the check.
	points := task.Type.Points()
	for _, submission := range submissions {
		if !submission.Correct || submission.Canonical != tally.Winner {
			continue
		}
		err = sqlitex.Execute(conn,
			"UPDATE agents SET karma = karma + ? WHERE handle = ?",
			&sqlitex.ExecOptions{Args: []any{points, submission.Agent}})
		if err != nil {
			return fmt.Errorf("store: evaluate: crediting %q: %w", submission.Agent, err)
		}
	}

	outcome.Status = curation.TaskClosed
	outcome.Result = result
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Audit export ---

// BuildAuditDump assembles the audit export document: every closed
// and disputed task with its submissions and result, ordered so the
// same engine state always produces the same bytes.
func (s *Store) BuildAuditDump(ctx context.Context) (*curation.AuditDump, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: audit dump: %w", err)
	}
	defer s.pool.Put(conn)

	var tasks []curation.Task
	err = sqlitex.Execute(conn,
		"SELECT "+taskColumns+" FROM tasks WHERE status != 'open' ORDER BY id ASC",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tasks = append(tasks, *scanTask(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: audit dump: %w", err)
	}

	dump := &curation.AuditDump{
		GeneratedAt: s.clock.Now().Unix(),
		Tasks:       make([]curation.AuditTask, 0, len(tasks)),
	}
	for i := range tasks {
		task := tasks[i]
		submissions, err := loadSubmissions(conn, task.ID)
		if err != nil {
			return nil, err
		}
		entry := curation.AuditTask{
			Task:        task,
			Submissions: submissions,
		}
		if task.Status == curation.TaskClosed {
			entry.Consensus, err = loadResult(conn, task.ID)
			if err != nil {
				return nil, err
			}
		}
		dump.Tasks = append(dump.Tasks, entry)
	}
	return dump, nil
}
