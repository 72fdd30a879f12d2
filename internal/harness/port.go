package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/chronicle/internal/workflow"
)

// ScriptedPort is an outbound port with scripted behavior for scenarios.
//
// Each successful call returns a deterministic execution id ("exec-0001",
// "exec-0002", ...). The first failNext calls fail instead, which is how
// compensation scenarios provoke execution failures.
type ScriptedPort struct {
	mu       sync.Mutex
	calls    int
	failNext int
	actions  []workflow.Action
}

// NewScriptedPort creates a port whose first failNext calls fail.
func NewScriptedPort(failNext int) *ScriptedPort {
	return &ScriptedPort{failNext: failNext}
}

// Execute implements workflow.OutboundPort.
func (p *ScriptedPort) Execute(ctx context.Context, action workflow.Action) (workflow.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.actions = append(p.actions, action)
	if p.failNext > 0 {
		p.failNext--
		return workflow.Receipt{}, fmt.Errorf("scripted execution failure (call %d)", p.calls)
	}
	return workflow.Receipt{ExecutionID: fmt.Sprintf("exec-%04d", p.calls)}, nil
}

// Calls returns the number of times Execute was invoked.
func (p *ScriptedPort) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Actions returns the actions passed to Execute, in order.
func (p *ScriptedPort) Actions() []workflow.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]workflow.Action, len(p.actions))
	copy(out, p.actions)
	return out
}
