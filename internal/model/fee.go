package model

import "time"

type FeeStatus string

const (
	FeePending   FeeStatus = "PENDING"
	FeePaid      FeeStatus = "PAID"
	FeeCancelled FeeStatus = "CANCELLED"
)

var feeTransitions = map[FeeStatus][]FeeStatus{
	FeePending:   {FeePaid, FeeCancelled},
	FeePaid:      {},
	FeeCancelled: {},
}

func (s FeeStatus) CanTransitionTo(target FeeStatus) bool {
	for _, t := range feeTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func FeeStatuses() []FeeStatus {
	return []FeeStatus{FeePending, FeePaid, FeeCancelled}
}

// Fee types.
const (
	FeeTypeWin          = "WIN_FEE"
	FeeTypeVerification = "VERIFICATION_FEE"
)

// FeeTransaction tracks a platform fee owed by a user. At most one WIN_FEE
// exists per (project, bid) pair.
type FeeTransaction struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	UserID       string     `json:"user_id"`
	ProjectID    string     `json:"project_id"`
	BidID        string     `json:"bid_id,omitempty"`
	Type         string     `json:"type"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Status       FeeStatus  `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	PaidBy       string     `json:"paid_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Version int64 `json:"-"`
}
