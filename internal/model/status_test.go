package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectTransitions(t *testing.T) {
	allowed := map[ProjectStatus][]ProjectStatus{
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

	for _, from := range ProjectStatuses() {
		for _, to := range ProjectStatuses() {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestProjectTerminal(t *testing.T) {
	assert.True(t, ProjectCompleted.Terminal())
	assert.True(t, ProjectCancelled.Terminal())
	assert.False(t, ProjectOpen.Terminal())
	assert.False(t, ProjectMatched.Terminal())
}

func TestBidTransitions(t *testing.T) {
	assert.True(t, BidPending.CanTransitionTo(BidApproved))
	assert.True(t, BidPending.CanTransitionTo(BidRejected))
	assert.True(t, BidPending.CanTransitionTo(BidWithdrawn))
	assert.True(t, BidApproved.CanTransitionTo(BidSelected))
	assert.True(t, BidApproved.CanTransitionTo(BidWithdrawn))
	assert.True(t, BidSelected.CanTransitionTo(BidApproved))

	assert.False(t, BidPending.CanTransitionTo(BidSelected), "selection requires prior approval")
	assert.False(t, BidSelected.CanTransitionTo(BidWithdrawn))
	assert.False(t, BidRejected.CanTransitionTo(BidApproved))
	assert.False(t, BidWithdrawn.CanTransitionTo(BidPending))
}

func TestBidActive(t *testing.T) {
	assert.True(t, BidPending.Active())
	assert.True(t, BidApproved.Active())
	assert.True(t, BidSelected.Active())
	assert.False(t, BidRejected.Active())
	assert.False(t, BidWithdrawn.Active())
}

func TestEscrowTransitions(t *testing.T) {
	assert.True(t, EscrowPending.CanTransitionTo(EscrowHeld))
	assert.True(t, EscrowPending.CanTransitionTo(EscrowCancelled))
	assert.True(t, EscrowHeld.CanTransitionTo(EscrowPartialReleased))
	assert.True(t, EscrowHeld.CanTransitionTo(EscrowReleased))
	assert.True(t, EscrowHeld.CanTransitionTo(EscrowRefunded))
	assert.True(t, EscrowHeld.CanTransitionTo(EscrowDisputed))
	assert.True(t, EscrowPartialReleased.CanTransitionTo(EscrowReleased))
	assert.True(t, EscrowDisputed.CanTransitionTo(EscrowReleased))
	assert.True(t, EscrowDisputed.CanTransitionTo(EscrowRefunded))

	assert.False(t, EscrowPending.CanTransitionTo(EscrowReleased), "funds must be held before release")
	assert.False(t, EscrowHeld.CanTransitionTo(EscrowCancelled), "held funds are refunded, never cancelled")
	assert.False(t, EscrowReleased.CanTransitionTo(EscrowRefunded))
	assert.False(t, EscrowRefunded.CanTransitionTo(EscrowHeld))

	for _, s := range []EscrowStatus{EscrowReleased, EscrowRefunded, EscrowCancelled} {
		assert.True(t, s.Terminal(), "%s", s)
	}
}

func TestEscrowRemaining(t *testing.T) {
	e := &Escrow{Amount: 10_000_000, ReleasedAmount: 4_000_000}
	assert.Equal(t, int64(6_000_000), e.Remaining())
}

func TestFeeTransitions(t *testing.T) {
	assert.True(t, FeePending.CanTransitionTo(FeePaid))
	assert.True(t, FeePending.CanTransitionTo(FeeCancelled))
	assert.False(t, FeePaid.CanTransitionTo(FeeCancelled))
	assert.False(t, FeeCancelled.CanTransitionTo(FeePending))
}

func TestDefaultMilestones(t *testing.T) {
	defs := DefaultMilestones()
	require.Len(t, defs, 2)

	sum := 0
	lastPct := 0
	for _, d := range defs {
		assert.Greater(t, d.Percentage, lastPct, "percentages must increase")
		lastPct = d.Percentage
		sum += d.ReleasePercentage
	}
	assert.Equal(t, 100, sum, "release shares must cover the full escrow")
	assert.Equal(t, 100, defs[len(defs)-1].Percentage, "plan must end at completion")
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "PRJ-000042", FormatCode(CodeScopeProject, 42))
	assert.Equal(t, "FEE-001000", FormatCode(CodeScopeFee, 1000))
}
