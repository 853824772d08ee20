package model

// RunState is the governor's lifecycle state for one intent.
type RunState string

const (
	StateCreated      RunState = "created"
	StateAgentRunning RunState = "agent_running"
	StateEvaluating   RunState = "evaluating"
	StateCompleted    RunState = "completed"
)

var transitions = map[RunState][]RunState{
	StateCreated:      {StateAgentRunning},
	StateAgentRunning: {StateEvaluating, StateCompleted},
	StateEvaluating:   {StateCompleted},
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// AgentRunning -> Completed is the abort path.
func (s RunState) CanTransition(next RunState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
