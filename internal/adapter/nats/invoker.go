package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// actionSubjectPrefix is where fleet workers listen for action requests.
// Each action gets its own subject, e.g. "actions.migrate_workload".
const actionSubjectPrefix = "actions."

// Invoker implements the action handler port over NATS request-reply. Fleet
// workers subscribed on the action subjects perform the actual infrastructure
// changes and reply with the step result.
type Invoker struct {
	q *Queue
}

// NewInvoker creates an Invoker sharing the queue's connection.
func NewInvoker(q *Queue) *Invoker {
	return &Invoker{q: q}
}

type actionRequest struct {
	Action      string         `json:"action"`
	ResourceIDs []string       `json:"resource_ids"`
	Params      map[string]any `json:"params,omitempty"`
}

type actionReply struct {
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Invoke sends the action to its worker subject and waits for the reply. The
// caller's context carries the per-step timeout; no worker replying in time
// surfaces as an error.
func (iv *Invoker) Invoke(ctx context.Context, action string, resourceIDs []string, params map[string]any) (map[string]any, error) {
	data, err := json.Marshal(actionRequest{
		Action:      action,
		ResourceIDs: resourceIDs,
		Params:      params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal action request: %w", err)
	}

	msg, err := iv.q.nc.RequestWithContext(ctx, actionSubjectPrefix+action, data)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", action, err)
	}

	var reply actionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("action %s: malformed reply: %w", action, err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Result, nil
}
