package model

import "time"

type EscrowStatus string

const (
	EscrowPending         EscrowStatus = "PENDING"
	EscrowHeld            EscrowStatus = "HELD"
	EscrowPartialReleased EscrowStatus = "PARTIAL_RELEASED"
	EscrowDisputed        EscrowStatus = "DISPUTED"
	EscrowReleased        EscrowStatus = "RELEASED"
	EscrowRefunded        EscrowStatus = "REFUNDED"
	EscrowCancelled       EscrowStatus = "CANCELLED"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowPending:         {EscrowHeld, EscrowCancelled},
	EscrowHeld:            {EscrowPartialReleased, EscrowReleased, EscrowRefunded, EscrowDisputed},
	EscrowPartialReleased: {EscrowReleased, EscrowRefunded, EscrowDisputed},
	EscrowDisputed:        {EscrowReleased, EscrowRefunded},
	EscrowReleased:        {},
	EscrowRefunded:        {},
	EscrowCancelled:       {},
}

func (s EscrowStatus) CanTransitionTo(target EscrowStatus) bool {
	for _, t := range escrowTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s EscrowStatus) Terminal() bool {
	return len(escrowTransitions[s]) == 0
}

func EscrowStatuses() []EscrowStatus {
	return []EscrowStatus{
		EscrowPending, EscrowHeld, EscrowPartialReleased, EscrowDisputed,
		EscrowReleased, EscrowRefunded, EscrowCancelled,
	}
}

// Escrow transaction log entry types. ADJUSTMENT is for non-monetary
// entries (disputes, voids); its amount is always zero.
const (
	EscrowTxDeposit    = "DEPOSIT"
	EscrowTxRelease    = "RELEASE"
	EscrowTxRefund     = "REFUND"
	EscrowTxAdjustment = "ADJUSTMENT"
)

// EscrowTransaction is one append-only log entry on an escrow.
type EscrowTransaction struct {
	Type    string    `json:"type"`
	Amount  int64     `json:"amount"`
	ActorID string    `json:"actor_id"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// Escrow is the custodial record of funds held against a matched project.
// Invariant: 0 <= ReleasedAmount <= Amount; RELEASED implies
// ReleasedAmount == Amount. At most one escrow exists per project.
type Escrow struct {
	ID             string              `json:"id"`
	Code           string              `json:"code"`
	ProjectID      string              `json:"project_id"`
	BidID          string              `json:"bid_id"`
	HomeownerID    string              `json:"homeowner_id"`
	ContractorID   string              `json:"contractor_id"`
	Amount         int64               `json:"amount"`
	ReleasedAmount int64               `json:"released_amount"`
	Currency       string              `json:"currency"`
	Status         EscrowStatus        `json:"status"`
	Transactions   []EscrowTransaction `json:"transactions"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`

	Version int64 `json:"-"`
}

// Remaining returns the unreleased amount.
func (e *Escrow) Remaining() int64 {
	return e.Amount - e.ReleasedAmount
}
