// Package tui provides the live terminal viewer used by `sprint --watch`.
//
// The viewer is read-only. It shows the task board, a scrolling event log
// and the team's track record, with a spinner while a sprint check runs.
//
// Usage:
//
//	program, _ := tui.NewProgram()
//	go program.Run()
//
//	program.Send(tui.BoardMsg{Tasks: tasks})
//	program.Send(tui.SprintStartedMsg{})
//	program.Send(tui.SprintResultMsg{Message: msg, Err: err})
//	program.Send(tui.SessionDoneMsg{Success: true, Message: "stopped"})
package tui
