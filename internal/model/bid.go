package model

import "time"

type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidApproved  BidStatus = "APPROVED"
	BidRejected  BidStatus = "REJECTED"
	BidSelected  BidStatus = "SELECTED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

var bidTransitions = map[BidStatus][]BidStatus{
	BidPending:   {BidApproved, BidRejected, BidWithdrawn},
	BidApproved:  {BidSelected, BidWithdrawn},
	BidSelected:  {BidApproved}, // demotion when a match is rejected
	BidRejected:  {},
	BidWithdrawn: {},
}

func (s BidStatus) CanTransitionTo(target BidStatus) bool {
	for _, t := range bidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Active reports whether the bid still occupies the contractor's single
// active slot on the project.
func (s BidStatus) Active() bool {
	return s == BidPending || s == BidApproved || s == BidSelected
}

func BidStatuses() []BidStatus {
	return []BidStatus{BidPending, BidApproved, BidRejected, BidSelected, BidWithdrawn}
}

// Bid is a contractor's offer on a project. Bids are scoped to their project.
type Bid struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	ProjectID    string     `json:"project_id"`
	ContractorID string     `json:"contractor_id"`
	Price        int64      `json:"price"`
	TimelineDays int        `json:"timeline_days"`
	Proposal     string     `json:"proposal"`
	Status       BidStatus  `json:"status"`
	ReviewedBy   string     `json:"reviewed_by,omitempty"`
	ReviewNote   string     `json:"review_note,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	WithdrawnAt  *time.Time `json:"withdrawn_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Version int64 `json:"-"`
}
