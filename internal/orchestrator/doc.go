// Package orchestrator runs tasks for a team of worker identities against an
// execution backend and learns from the results.
//
// RunTask composes a prompt from the agent's instructions, project context,
// shared memory, the rest of the team and any rule suggestions, executes it
// once, then records the outcome: agent performance, a memory note, structured
// agent and skill requests, and learnings. Unless the agent is terminal, a
// planning pass then updates the board and may schedule a follow-up task.
//
// The Executor is either a one-shot agent.Backend (BackendExecutor) or a Pool
// of persistent interactive sessions.
//
// Example usage:
//
//	orch, err := orchestrator.New(
//		orchestrator.RequiredConfig{Executor: exec, Tasks: db},
//		orchestrator.WithRegistry(registry),
//		orchestrator.WithMemory(notes),
//	)
//	out, err := orch.RunTask(ctx, "backend", "implement payments endpoint", "")
package orchestrator
