// Package tui provides the live workflow view for the qforge run command.
//
// The view is read-only: it renders one row per task, an overall progress
// bar and a short activity log, all driven by orchestrator events. Users can
// only quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, _ := tui.NewProgram(ack.WorkflowID, tasks, cfg.TUI.RefreshRate)
//	go tui.Forward(program, orch.Events())
//	go program.Run()
//
//	// Signal completion
//	program.Send(tui.WorkflowDoneMsg{Report: report})
package tui
