package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grouppulse/grouppulse/internal/analysis"
	"github.com/grouppulse/grouppulse/internal/database"
)

// Task kinds.
const (
	TaskBackfill = "backfill"
	TaskStream   = "stream"
)

// ErrTaskRunning is returned when a task of the same kind is already
// running for the scope.
var ErrTaskRunning = errors.New("task already running")

// ErrTaskNotFound is returned when stopping a task that is not running.
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus is a point-in-time view of one running task.
type TaskStatus struct {
	Kind      string
	GroupID   int64
	StartedAt time.Time
}

type taskKey struct {
	kind    string
	groupID int64
}

type taskHandle struct {
	cancel    context.CancelFunc
	startedAt time.Time
	record    *database.IngestTask
}

// Manager owns the running ingestion tasks for one organization: at most
// one backfill per group and at most one stream. Task state is mirrored to
// the store so operators can inspect it after the fact.
type Manager struct {
	store    database.Store
	backfill *Backfill
	orgID    string
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[taskKey]*taskHandle
	wg    sync.WaitGroup
}

// NewManager creates a task manager.
func NewManager(store database.Store, backfill *Backfill, orgID string, logger *slog.Logger) (*Manager, error) {
	if store == nil || backfill == nil {
		return nil, errors.New("store and backfill are required")
	}
	if orgID == "" {
		return nil, errors.New("orgID is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:    store,
		backfill: backfill,
		orgID:    orgID,
		logger:   logger.With("component", "manager"),
		tasks:    make(map[taskKey]*taskHandle),
	}, nil
}

// StartBackfill launches a background backfill for the group over the
// given window (zero window means full history). Returns ErrTaskRunning if
// one is already in flight for the same group.
func (m *Manager) StartBackfill(ctx context.Context, groupID int64, window Window) error {
	key := taskKey{kind: TaskBackfill, groupID: groupID}

	m.mu.Lock()
	if _, running := m.tasks[key]; running {
		m.mu.Unlock()
		return fmt.Errorf("%w: backfill for group %d", ErrTaskRunning, groupID)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	handle := &taskHandle{
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		record: &database.IngestTask{
			OrgID:     m.orgID,
			GroupID:   groupID,
			Kind:      TaskBackfill,
			Status:    StageFetching,
			StartedAt: time.Now().UTC(),
		},
	}
	m.tasks[key] = handle
	m.mu.Unlock()

	if err := m.store.SaveTaskStatus(ctx, handle.record); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist task start",
			"kind", TaskBackfill, "group_id", groupID, "error", err)
	}

	m.logger.InfoContext(ctx, "Backfill started", "group_id", groupID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		scope := database.Scope{OrgID: m.orgID, GroupID: groupID}
		summary, err := m.backfill.Run(taskCtx, scope, window)

		status := StageDone
		detail := ""
		if err != nil {
			status = StageFailed
			detail = err.Error()
		} else {
			detail = fmt.Sprintf("%d messages", summary.TotalMessages)
		}
		m.finish(key, status, detail)
	}()
	return nil
}

// RegisterStream records the live stream as a running task so it shows up
// in Status and can be stopped. The returned context governs the stream's
// lifetime.
func (m *Manager) RegisterStream(ctx context.Context) (context.Context, error) {
	key := taskKey{kind: TaskStream}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.tasks[key]; running {
		return nil, fmt.Errorf("%w: stream", ErrTaskRunning)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	handle := &taskHandle{
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		record: &database.IngestTask{
			OrgID:     m.orgID,
			Kind:      TaskStream,
			Status:    "running",
			StartedAt: time.Now().UTC(),
		},
	}
	m.tasks[key] = handle

	if err := m.store.SaveTaskStatus(ctx, handle.record); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist stream start", "error", err)
	}

	m.logger.InfoContext(ctx, "Stream registered")
	return streamCtx, nil
}

// StopTask cancels a running task by kind and group (group zero for the
// stream).
func (m *Manager) StopTask(kind string, groupID int64) error {
	key := taskKey{kind: kind, groupID: groupID}

	m.mu.Lock()
	handle, ok := m.tasks[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s for group %d", ErrTaskNotFound, kind, groupID)
	}

	handle.cancel()
	if kind == TaskStream {
		// The stream has no goroutine of its own to report completion.
		m.finish(key, "stopped", "")
	}
	return nil
}

// Status lists the currently running tasks.
func (m *Manager) Status() []TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(m.tasks))
	for key, handle := range m.tasks {
		statuses = append(statuses, TaskStatus{
			Kind:      key.kind,
			GroupID:   key.groupID,
			StartedAt: handle.startedAt,
		})
	}
	return statuses
}

// GetSummary returns the current analysis for a group, preferring the
// scope-wide document written by backfills and falling back to the most
// recent daily bucket. Returns nil, nil when no analysis exists yet.
func (m *Manager) GetSummary(ctx context.Context, groupID int64) (*analysis.Summary, error) {
	scope := database.Scope{OrgID: m.orgID, GroupID: groupID}

	record, err := m.store.LatestAnalysis(ctx, scope)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return analysis.FromRecord(record)
}

// Wait blocks until all background tasks have finished. Cancel the parent
// context first to make them stop.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// finish removes a task from the registry and persists its final status.
func (m *Manager) finish(key taskKey, status, detail string) {
	m.mu.Lock()
	handle, ok := m.tasks[key]
	delete(m.tasks, key)
	m.mu.Unlock()
	if !ok {
		return
	}

	handle.record.Status = status
	handle.record.Detail = detail
	handle.record.StoppedAt.Time = time.Now().UTC()
	handle.record.StoppedAt.Valid = true

	// Detached context: the task's own context is already cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveTaskStatus(ctx, handle.record); err != nil {
		m.logger.Warn("Failed to persist task completion",
			"kind", key.kind, "group_id", key.groupID, "error", err)
	}

	m.logger.Info("Task finished", "kind", key.kind, "group_id", key.groupID, "status", status)
}
