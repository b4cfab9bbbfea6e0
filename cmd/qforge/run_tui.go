package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/internal/tui"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// runWithTUI shows the live progress view until the user quits. The
// orchestrator is stopped before returning so the event forwarder exits.
func runWithTUI(orch *orchestrator.Orchestrator, ack orchestrator.Ack, tasks []*models.Task, refresh time.Duration) (report orchestrator.StatusReport, retErr error) {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runWithTUI: %v", r)
		}
	}()

	program, _ := tui.NewProgram(ack.WorkflowID, tasks, refresh)
	go tui.Forward(program, orch.Events())

	// Channel to signal workflow completion
	wfDone := make(chan struct{})
	go func() {
		defer close(wfDone)
		r, err := orch.Wait(context.Background(), ack.WorkflowID)
		report = r
		program.Send(tui.WorkflowDoneMsg{Report: r, Err: err})
	}()

	if _, err := program.Run(); err != nil {
		return orchestrator.StatusReport{}, fmt.Errorf("run TUI: %w", err)
	}

	// Quitting early cancels the workflow.
	orch.Stop()
	<-wfDone
	return report, nil
}
