package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusSubmitted, StatusProcessing},
		{StatusSubmitted, StatusRejected},
		{StatusSubmitted, StatusCancelled},
		{StatusPendingReview, StatusProcessing},
		{StatusPendingReview, StatusRejected},
		{StatusPendingReview, StatusCancelled},
		{StatusApproved, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to Status }{
		{StatusSubmitted, StatusCompleted},
		{StatusSubmitted, StatusSubmitted},
		{StatusProcessing, StatusRejected},
		{StatusCompleted, StatusCancelled},
		{StatusRejected, StatusProcessing},
		{StatusCancelled, StatusSubmitted},
		{Status("BOGUS"), StatusProcessing},
		{StatusProcessing, Status("BOGUS")},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		assert.True(t, s.Terminal(), "%s", s)
		assert.Empty(t, orderTransitions[s], "terminal status %s must have no outgoing edges", s)
	}
	for _, s := range []Status{StatusSubmitted, StatusPendingReview, StatusApproved, StatusProcessing} {
		assert.False(t, s.Terminal(), "%s", s)
	}
}

func TestReviewable(t *testing.T) {
	assert.True(t, StatusSubmitted.Reviewable())
	assert.True(t, StatusPendingReview.Reviewable())

	for _, s := range []Status{StatusApproved, StatusProcessing, StatusCompleted, StatusRejected, StatusCancelled} {
		assert.False(t, s.Reviewable(), "%s", s)
	}
}

func TestUrgent(t *testing.T) {
	now := time.Now()
	old := now.Add(-UrgencyThreshold - time.Minute)
	fresh := now.Add(-UrgencyThreshold + time.Minute)

	assert.True(t, Urgent(StatusSubmitted, old, now))
	assert.True(t, Urgent(StatusPendingReview, old, now))
	assert.False(t, Urgent(StatusSubmitted, fresh, now))

	// Only statuses awaiting review can be urgent.
	assert.False(t, Urgent(StatusProcessing, old, now))
	assert.False(t, Urgent(StatusCompleted, old, now))
	assert.False(t, Urgent(StatusCancelled, old, now))
}
