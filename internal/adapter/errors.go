package adapter

import "errors"

// ErrAgentExecution marks the case where an agent subprocess exited
// non-zero, produced no stdout, and wrote something to stderr. The Agent
// Session surfaces this as a session:error event without tearing down
// the session.
var ErrAgentExecution = errors.New("adapter: agent execution failed")
