// Package audit persists the execution trail: run snapshots, step results,
// approvals, and dispatch decisions. Every state transition leaves an entry
// keyed so operators can reconstruct what happened and why.
//
// Storage keys:
//   - run_{run_id}: full run snapshot, rewritten on every transition
//   - step_{run_id}_{n}: one entry per executed step
//   - approval_{run_id}_{n}: operator approvals
//   - timeout_approval_{run_id}_{n}: timeout policy approvals
//   - dispatch_{family}_{ulid}: dispatch decisions, including rejections
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/persistence"
)

// writeTimeout bounds each audit write so a slow backend cannot stall run
// progression.
const writeTimeout = 5 * time.Second

const (
	runKeyPrefix      = "run_"
	stepKeyPrefix     = "step_"
	approvalKeyPrefix = "approval_"
	timeoutKeyPrefix  = "timeout_approval_"
	dispatchKeyPrefix = "dispatch_"
)

// DispatchRecord is the audit entry written for every dispatch decision.
type DispatchRecord struct {
	Family         string             `json:"family"`
	Decision       string             `json:"decision"`
	Reason         string             `json:"reason,omitempty"`
	DefinitionName string             `json:"definition_name,omitempty"`
	RunID          string             `json:"run_id,omitempty"`
	Source         models.EventSource `json:"source"`
	Topic          string             `json:"topic,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Logger writes audit entries to a persistence store. It satisfies the
// engine's Recorder interface.
type Logger struct {
	store  persistence.Store
	logger *slog.Logger
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store persistence.Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Logger{store: store, logger: logger}
}

// HealthCheck reports whether the backing store is reachable.
func (l *Logger) HealthCheck(ctx context.Context) error {
	return l.store.HealthCheck(ctx)
}

// RecordRun writes the full run snapshot, replacing any previous snapshot
// for the same run.
func (l *Logger) RecordRun(ctx context.Context, run *models.Run) error {
	return l.put(ctx, RunKey(run.RunID), run)
}

// RecordStep writes one audit entry for an executed step.
func (l *Logger) RecordStep(ctx context.Context, run *models.Run, result models.StepResult) error {
	return l.put(ctx, StepKey(run.RunID, result.StepNumber), result)
}

// RecordApproval writes an approval entry. Timeout policy approvals get a
// distinct key prefix so operators can tell them apart from human ones.
func (l *Logger) RecordApproval(ctx context.Context, run *models.Run, approval models.ApprovalRecord, byTimeout bool) error {
	key := ApprovalKey(run.RunID, approval.StepNumber)
	if byTimeout {
		key = TimeoutApprovalKey(run.RunID, approval.StepNumber)
	}

	return l.put(ctx, key, approval)
}

// RecordDispatch writes a dispatch decision entry. Each entry gets a fresh
// ULID so decisions for the same family never collide.
func (l *Logger) RecordDispatch(ctx context.Context, record DispatchRecord) error {
	key := fmt.Sprintf("%s%s_%s", dispatchKeyPrefix, record.Family, watermill.NewULID())

	return l.put(ctx, key, record)
}

// GetRun loads a persisted run snapshot.
func (l *Logger) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	data, err := l.store.Get(ctx, RunKey(runID))
	if err != nil {
		return nil, err
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}

	return &run, nil
}

// ListRunIDs returns the IDs of all persisted runs.
func (l *Logger) ListRunIDs(ctx context.Context) ([]string, error) {
	keys, err := l.store.ListKeys(ctx, runKeyPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, runKeyPrefix))
	}

	return ids, nil
}

// LoadRuns loads all persisted run snapshots, skipping entries that no
// longer decode. Used to restore engine state after a restart.
func (l *Logger) LoadRuns(ctx context.Context) ([]*models.Run, error) {
	ids, err := l.ListRunIDs(ctx)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.Run, 0, len(ids))
	for _, id := range ids {
		run, err := l.GetRun(ctx, id)
		if err != nil {
			l.logger.WarnContext(ctx, "Skipping undecodable run snapshot",
				"run_id", id, "error", err)
			continue
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// StepResults loads the step entries recorded for a run, in ascending step
// order. Steps are keyed individually, so a partially failed run still shows
// every step that did execute.
func (l *Logger) StepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	prefix := stepKeyPrefix + runID + "_"
	keys, err := l.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	results := make([]models.StepResult, 0, len(keys))
	for _, key := range keys {
		data, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		var result models.StepResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode step entry %s: %w", key, err)
		}
		results = append(results, result)
	}

	sortStepResults(results)

	return results, nil
}

// DispatchRecords loads the dispatch decisions written for one hook family,
// or for all families when family is empty.
func (l *Logger) DispatchRecords(ctx context.Context, family string) ([]DispatchRecord, error) {
	prefix := dispatchKeyPrefix
	if family != "" {
		prefix += family + "_"
	}

	keys, err := l.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	records := make([]DispatchRecord, 0, len(keys))
	for _, key := range keys {
		data, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		var record DispatchRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to decode dispatch entry %s: %w", key, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func (l *Logger) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry %s: %w", key, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := l.store.Put(writeCtx, key, data); err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", key, err)
	}

	return nil
}

// RunKey returns the storage key for a run snapshot.
func RunKey(runID string) string {
	return runKeyPrefix + runID
}

// StepKey returns the storage key for a step entry.
func StepKey(runID string, stepNumber int) string {
	return fmt.Sprintf("%s%s_%d", stepKeyPrefix, runID, stepNumber)
}

// ApprovalKey returns the storage key for an operator approval entry.
func ApprovalKey(runID string, stepNumber int) string {
	return fmt.Sprintf("%s%s_%d", approvalKeyPrefix, runID, stepNumber)
}

// TimeoutApprovalKey returns the storage key for a timeout approval entry.
func TimeoutApprovalKey(runID string, stepNumber int) string {
	return fmt.Sprintf("%s%s_%d", timeoutKeyPrefix, runID, stepNumber)
}

func sortStepResults(results []models.StepResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].StepNumber < results[j].StepNumber
	})
}
