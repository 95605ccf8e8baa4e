package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingKeyProjectSubmitted = "project.submitted"
	RoutingKeyProjectApproved  = "project.approved"
	RoutingKeyProjectRejected  = "project.rejected"
	RoutingKeyProjectMatched   = "project.matched"
	RoutingKeyProjectStarted   = "project.started"
	RoutingKeyProjectCompleted = "project.completed"
	RoutingKeyProjectCancelled = "project.cancelled"

	RoutingKeyBidCreated   = "bid.created"
	RoutingKeyBidApproved  = "bid.approved"
	RoutingKeyBidRejected  = "bid.rejected"
	RoutingKeyBidSelected  = "bid.selected"
	RoutingKeyBidWithdrawn = "bid.withdrawn"

	RoutingKeyMatchRejected = "match.rejected"

	RoutingKeyEscrowHeld            = "escrow.held"
	RoutingKeyEscrowPartialReleased = "escrow.partial_released"
	RoutingKeyEscrowReleased        = "escrow.released"
	RoutingKeyEscrowRefunded        = "escrow.refunded"
	RoutingKeyEscrowDisputed        = "escrow.disputed"
	RoutingKeyEscrowCancelled       = "escrow.cancelled"

	RoutingKeyFeePaid      = "fee.paid"
	RoutingKeyFeeCancelled = "fee.cancelled"
)

// Aggregate type names used in outbox events.
const (
	AggregateProject = "project"
	AggregateBid     = "bid"
	AggregateEscrow  = "escrow"
	AggregateFee     = "fee"
)

type ProjectEventPayload struct {
	ProjectID string    `json:"project_id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

type BidEventPayload struct {
	BidID        string    `json:"bid_id"`
	ProjectID    string    `json:"project_id"`
	ContractorID string    `json:"contractor_id"`
	Status       string    `json:"status"`
	Price        int64     `json:"price"`
	At           time.Time `json:"at"`
}

type EscrowEventPayload struct {
	EscrowID       string    `json:"escrow_id"`
	ProjectID      string    `json:"project_id"`
	HomeownerID    string    `json:"homeowner_id"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	ReleasedAmount int64     `json:"released_amount"`
	Currency       string    `json:"currency"`
	At             time.Time `json:"at"`
}

type FeeEventPayload struct {
	FeeID     string    `json:"fee_id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	At        time.Time `json:"at"`
}

type MatchRejectedPayload struct {
	ProjectID string    `json:"project_id"`
	OwnerID   string    `json:"owner_id"`
	BidID     string    `json:"bid_id"`
	AdminID   string    `json:"admin_id"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
