package model

import "time"

// Match saga steps, in execution order.
const (
	MatchStepBidSelected    = "BID_SELECTED"
	MatchStepProjectMatched = "PROJECT_MATCHED"
	MatchStepEscrowCreated  = "ESCROW_CREATED"
	MatchStepFeeCreated     = "FEE_CREATED"
	MatchStepDone           = "DONE"
)

// Match saga run states.
const (
	MatchRunRunning     = "RUNNING"
	MatchRunDone        = "DONE"
	MatchRunFailed      = "FAILED"
	MatchRunCompensated = "COMPENSATED"
)

// MatchRun is the durable log of one bid-selection saga. Keyed by project id:
// a project has at most one active match attempt. Step records the last step
// that completed, so a resumer knows where to pick up.
type MatchRun struct {
	ProjectID string    `json:"project_id"`
	BidID     string    `json:"bid_id"`
	Step      string    `json:"step"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
