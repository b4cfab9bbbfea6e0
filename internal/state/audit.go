package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
)

// WorkflowRecord is the stored summary of one workflow run.
type WorkflowRecord struct {
	ID                string        `json:"id"`
	Strategy          string        `json:"strategy"`
	EffectiveStrategy string        `json:"effective_strategy,omitempty"`
	Status            string        `json:"status"`
	Summary           string        `json:"summary,omitempty"`
	Duration          time.Duration `json:"duration"`
	SubmittedAt       time.Time     `json:"submitted_at"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
}

// OptimizationRecord is one optimizer run: when it ran, the final MDL and the
// improvement over the baseline.
type OptimizationRecord struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	MDL         float64   `json:"mdl"`
	Delta       float64   `json:"delta"`
	Sequence    string    `json:"sequence"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Notify records an orchestrator event. Workflow lifecycle events also
// maintain the workflows table and optimization events the optimizations table.
func (db *DB) Notify(ctx context.Context, ev orchestrator.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (id, type, workflow_id, task_id, worker_id, attempt, status, message, error, tokens_used, duration_ms, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Type), ev.WorkflowID, ev.TaskID, ev.WorkerID, ev.Attempt, ev.Status,
		ev.Message, ev.Error, ev.TokensUsed, ev.Duration.Milliseconds(), string(payload), formatTime(at))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.Type, err)
	}

	switch ev.Type {
	case orchestrator.EventWorkflowSubmitted:
		_, err = db.ExecContext(ctx, `
			INSERT INTO workflows (id, strategy, status, submitted_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status, ended_at = NULL
		`, ev.WorkflowID, ev.Strategy, ev.Status, formatTime(at))
	case orchestrator.EventWorkflowStarted:
		_, err = db.ExecContext(ctx, `
			UPDATE workflows SET effective_strategy = ?, status = ? WHERE id = ?
		`, ev.Strategy, ev.Status, ev.WorkflowID)
	case orchestrator.EventWorkflowFinished:
		_, err = db.ExecContext(ctx, `
			UPDATE workflows SET status = ?, summary = ?, duration_ms = ?, ended_at = ? WHERE id = ?
		`, ev.Status, ev.Message, ev.Duration.Milliseconds(), formatTime(at), ev.WorkflowID)
	case orchestrator.EventOptimization:
		_, err = db.ExecContext(ctx, `
			INSERT INTO optimizations (id, workflow_id, mdl, delta, sequence, fingerprint, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ev.ID, ev.WorkflowID, ev.MDL, ev.Delta, ev.Sequence, ev.Fingerprint, formatTime(at))
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", ev.Type, err)
	}
	return nil
}

// GetWorkflow returns the stored summary of a workflow, or nil if unknown.
func (db *DB) GetWorkflow(id string) (*WorkflowRecord, error) {
	row := db.QueryRow(`
		SELECT id, strategy, effective_strategy, status, summary, duration_ms, submitted_at, ended_at
		FROM workflows WHERE id = ?
	`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// RecentWorkflows returns up to limit workflows, newest first.
func (db *DB) RecentWorkflows(limit int) ([]WorkflowRecord, error) {
	rows, err := db.Query(`
		SELECT id, strategy, effective_strategy, status, summary, duration_ms, submitted_at, ended_at
		FROM workflows ORDER BY submitted_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// RecentOptimizations returns up to limit optimizer runs, newest first.
func (db *DB) RecentOptimizations(limit int) ([]OptimizationRecord, error) {
	rows, err := db.Query(`
		SELECT id, workflow_id, mdl, delta, sequence, fingerprint, created_at
		FROM optimizations ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list optimizations: %w", err)
	}
	defer rows.Close()

	var out []OptimizationRecord
	for rows.Next() {
		var r OptimizationRecord
		var workflowID, sequence, fingerprint sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &workflowID, &r.MDL, &r.Delta, &sequence, &fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan optimization: %w", err)
		}
		r.WorkflowID = workflowID.String
		r.Sequence = sequence.String
		r.Fingerprint = fingerprint.String
		r.CreatedAt, _ = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// WorkflowEvents returns the recorded events of a workflow in the order they occurred.
func (db *DB) WorkflowEvents(workflowID string) ([]orchestrator.Event, error) {
	rows, err := db.Query(`
		SELECT payload FROM events WHERE workflow_id = ? ORDER BY created_at, rowid
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev orchestrator.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s scanner) (*WorkflowRecord, error) {
	var w WorkflowRecord
	var effective, summary, endedAt sql.NullString
	var durationMS int64
	var submittedAt string
	if err := s.Scan(&w.ID, &w.Strategy, &effective, &w.Status, &summary, &durationMS, &submittedAt, &endedAt); err != nil {
		return nil, err
	}
	w.EffectiveStrategy = effective.String
	w.Summary = summary.String
	w.Duration = time.Duration(durationMS) * time.Millisecond
	w.SubmittedAt, _ = parseTime(submittedAt)
	w.EndedAt = parseNullableTime(endedAt)
	return &w, nil
}
