// Package actionhandler defines the port through which the execution
// orchestrator invokes platform-supplied operations against infrastructure
// resources. The engine never talks to a cloud provider directly.
package actionhandler

import "context"

// Invoker executes one named operation against a set of opaque resource ids.
// Implementations are supplied by the surrounding platform; test doubles
// implement it in-process.
//
// The orchestrator calls Invoke exactly once per plan step and treats any
// returned error (including ctx deadline expiry) as a step failure. Retry
// policy, if any, lives inside the implementation, never in the engine, so
// rollback decisions are based on a single deterministic attempt per step.
//
// During rollback the orchestrator invokes the step's action prefixed with
// "rollback_" (e.g. "rollback_take_snapshot"); implementations map that to
// the undo operation.
type Invoker interface {
	Invoke(ctx context.Context, action string, resourceIDs []string, params map[string]any) (map[string]any, error)
}

// RollbackPrefix is prepended to a step's action name when undoing it.
const RollbackPrefix = "rollback_"
