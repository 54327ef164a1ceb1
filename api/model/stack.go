package model

import "time"

// StackState is the normalized state of a stack update.
type StackState string

const (
	StateInProgress StackState = "IN_PROGRESS"
	StateSucceeded  StackState = "SUCCEEDED"
	StateFailed     StackState = "FAILED"
	StateRolledBack StackState = "ROLLED_BACK" // provider reverted the update on its own
	StateUnknown    StackState = "UNKNOWN"
)

// Terminal reports whether no further change happens without a new operation.
func (s StackState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRolledBack:
		return true
	}
	return false
}

// StackStatus is one answer from the provider's status endpoint.
type StackStatus struct {
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// UpdateRequest asks the provider to apply the template at TemplateURL.
type UpdateRequest struct {
	StackName   string            `json:"stackName"`
	TemplateURL string            `json:"templateUrl"`
	Bucket      string            `json:"bucket"`
	TemplateKey string            `json:"templateKey"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// StackOperation is one in-flight update, owned by a single rollback.
type StackOperation struct {
	ID                string     `json:"id"`
	StackName         string     `json:"stackName"`
	TemplateURL       string     `json:"templateUrl"`
	ArtifactDirectory string     `json:"artifactDirectory"`
	StartedAt         time.Time  `json:"startedAt"`
	State             StackState `json:"state"`
	Status            string     `json:"status"`
	Reason            string     `json:"reason,omitempty"`
	Polls             int        `json:"polls"`
	Terminal          bool       `json:"terminal"`
	NoChanges         bool       `json:"noChanges,omitempty"`
}

// Observe records a classified poll result.
func (op *StackOperation) Observe(st StackStatus, state StackState) {
	op.Polls++
	op.Status = st.Status
	op.Reason = st.Reason
	op.State = state
	op.Terminal = state.Terminal()
}
