package model

import "time"

type ProjectStatus string

const (
	ProjectDraft           ProjectStatus = "DRAFT"
	ProjectPendingApproval ProjectStatus = "PENDING_APPROVAL"
	ProjectRejected        ProjectStatus = "REJECTED"
	ProjectOpen            ProjectStatus = "OPEN"
	ProjectBiddingClosed   ProjectStatus = "BIDDING_CLOSED"
	ProjectMatched         ProjectStatus = "MATCHED"
	ProjectInProgress      ProjectStatus = "IN_PROGRESS"
	ProjectCompleted       ProjectStatus = "COMPLETED"
	ProjectCancelled       ProjectStatus = "CANCELLED"
)

// projectTransitions is the full set of legal project status edges.
// COMPLETED and CANCELLED are terminal.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectDraft:           {ProjectPendingApproval, ProjectCancelled},
	ProjectPendingApproval: {ProjectOpen, ProjectRejected},
	ProjectRejected:        {ProjectPendingApproval, ProjectCancelled},
	ProjectOpen:            {ProjectBiddingClosed, ProjectCancelled},
	ProjectBiddingClosed:   {ProjectMatched, ProjectOpen, ProjectCancelled},
	ProjectMatched:         {ProjectInProgress, ProjectCancelled},
	ProjectInProgress:      {ProjectCompleted, ProjectCancelled},
	ProjectCompleted:       {},
	ProjectCancelled:       {},
}

// CanTransitionTo reports whether the edge s -> target is legal.
func (s ProjectStatus) CanTransitionTo(target ProjectStatus) bool {
	for _, t := range projectTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ProjectStatus) Terminal() bool {
	return len(projectTransitions[s]) == 0
}

// ProjectStatuses lists every project status, for exhaustive table checks.
func ProjectStatuses() []ProjectStatus {
	return []ProjectStatus{
		ProjectDraft, ProjectPendingApproval, ProjectRejected, ProjectOpen,
		ProjectBiddingClosed, ProjectMatched, ProjectInProgress,
		ProjectCompleted, ProjectCancelled,
	}
}

// Project is a homeowner's renovation project.
// SelectedBidID is set iff status is MATCHED, IN_PROGRESS or COMPLETED
// (cleared again when a match is rejected).
type Project struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	OwnerID       string        `json:"owner_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Category      string        `json:"category"`
	Region        string        `json:"region"`
	Budget        int64         `json:"budget"`
	Status        ProjectStatus `json:"status"`
	SelectedBidID string        `json:"selected_bid_id,omitempty"`
	MaxBids       int           `json:"max_bids"`
	BidDeadline   *time.Time    `json:"bid_deadline,omitempty"`
	ReviewNote    string        `json:"review_note,omitempty"`
	PublishedAt   *time.Time    `json:"published_at,omitempty"`
	MatchedAt     *time.Time    `json:"matched_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Version is the store's optimistic concurrency token.
	Version int64 `json:"-"`
}
