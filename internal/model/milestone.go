package model

import "time"

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneRequested MilestoneStatus = "REQUESTED"
	MilestoneConfirmed MilestoneStatus = "CONFIRMED"
	MilestoneDisputed  MilestoneStatus = "DISPUTED"
)

// Milestone is a completion checkpoint under an escrow. Percentage orders
// the sequence; ReleasePercentage is the share of escrow funds expected to
// be released once the milestone is confirmed (release itself is a separate
// admin action).
type Milestone struct {
	ID                string          `json:"id"`
	EscrowID          string          `json:"escrow_id"`
	ProjectID         string          `json:"project_id"`
	Name              string          `json:"name"`
	Percentage        int             `json:"percentage"`
	ReleasePercentage int             `json:"release_percentage"`
	Status            MilestoneStatus `json:"status"`
	RequestedAt       *time.Time      `json:"requested_at,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	DisputeReason     string          `json:"dispute_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Version int64 `json:"-"`
}

// MilestoneDef describes one milestone to create when a project starts.
type MilestoneDef struct {
	Name              string
	Percentage        int
	ReleasePercentage int
}

// DefaultMilestones is the milestone set created when a project moves to
// IN_PROGRESS: half the funds at 50% completion, the rest at 100%.
func DefaultMilestones() []MilestoneDef {
	return []MilestoneDef{
		{Name: "Halfway checkpoint", Percentage: 50, ReleasePercentage: 50},
		{Name: "Final completion", Percentage: 100, ReleasePercentage: 50},
	}
}
