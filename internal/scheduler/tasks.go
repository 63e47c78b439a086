package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/pipeline"
)

// Task names, matched against scheduler configuration entries.
const (
	TaskSQLMaintenance = "sql_maintenance"
	TaskDailyAnalysis  = "daily_analysis"
)

// TaskDeps bundles the dependencies scheduled tasks need.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Backfill *pipeline.Backfill
	OrgID    string
}

// RegisterAll builds the registry of schedulable task functions.
func RegisterAll(deps TaskDeps) map[string]TaskFunc {
	return map[string]TaskFunc{
		TaskSQLMaintenance: newSQLMaintenanceTask(deps),
		TaskDailyAnalysis:  newDailyAnalysisTask(deps),
	}
}

// newSQLMaintenanceTask compacts the database.
func newSQLMaintenanceTask(deps TaskDeps) TaskFunc {
	return func(ctx context.Context) error {
		taskCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		return deps.Store.RunMaintenance(taskCtx)
	}
}

// newDailyAnalysisTask rebuilds the scope-wide analysis for every known
// group from stored history. Messages classified earlier keep their scores,
// so a nightly run mostly folds and rarely calls the model.
func newDailyAnalysisTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", TaskDailyAnalysis)

	return func(ctx context.Context) error {
		groups, err := deps.Store.Groups(ctx, deps.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		if len(groups) == 0 {
			log.InfoContext(ctx, "No groups to analyze")
			return nil
		}

		failed := 0
		for _, g := range groups {
			scope := database.Scope{OrgID: deps.OrgID, GroupID: g.GroupID}
			summary, err := deps.Backfill.Run(ctx, scope, pipeline.Window{})
			if err != nil {
				log.ErrorContext(ctx, "Group re-analysis failed", "group_id", g.GroupID, "error", err)
				failed++
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			log.InfoContext(ctx, "Group re-analyzed",
				"group_id", g.GroupID, "messages", summary.TotalMessages)
		}

		if failed > 0 {
			return fmt.Errorf("re-analysis failed for %d of %d groups", failed, len(groups))
		}
		return nil
	}
}
