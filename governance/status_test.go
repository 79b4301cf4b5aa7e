package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyNextWalksTheFixedSequence(t *testing.T) {
	// GIVEN the fixed four-level sequence
	// WHEN each in-review status is approved
	// THEN status and level advance together, one edge per action
	cases := []struct {
		from  Status
		to    Status
		level int
		slot  LegacySlot
	}{
		{StatusSubmitted, StatusDMApproved, 2, SlotDM},
		{StatusDMApproved, StatusRDApproved, 3, SlotRD},
		{StatusRDApproved, StatusAVPApproved, 4, SlotAVP},
		{StatusAVPApproved, StatusFinalApproved, 5, SlotGVP},
	}
	for _, tc := range cases {
		tr, ok := LegacyNext(tc.from)
		require.True(t, ok, "status %s must have a forward edge", tc.from)
		assert.Equal(t, tc.to, tr.Next)
		assert.Equal(t, tc.level, tr.Level)
		assert.Equal(t, tc.slot, tr.Slot)
	}
}

func TestLegacyNextRejectsNonApprovableStatuses(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusFinalApproved, StatusRejected, StatusDenied} {
		_, ok := LegacyNext(s)
		assert.False(t, ok, "status %s must not be approvable", s)
	}
}

func TestSlotForStepMirrorsOnlyFirstFourOrdinals(t *testing.T) {
	assert.Equal(t, SlotDM, SlotForStep(1))
	assert.Equal(t, SlotRD, SlotForStep(2))
	assert.Equal(t, SlotAVP, SlotForStep(3))
	assert.Equal(t, SlotGVP, SlotForStep(4))
	assert.Equal(t, SlotNone, SlotForStep(5))
	assert.Equal(t, SlotNone, SlotForStep(0))
}

func TestInReviewCoversExactlyTheActionableStatuses(t *testing.T) {
	inReview := []Status{StatusSubmitted, StatusDMApproved, StatusRDApproved, StatusAVPApproved}
	for _, s := range inReview {
		assert.True(t, s.InReview(), "%s should be in review", s)
	}
	for _, s := range []Status{StatusDraft, StatusFinalApproved, StatusRejected, StatusDenied} {
		assert.False(t, s.InReview(), "%s should not be in review", s)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusFinalApproved.Terminal())
	assert.True(t, StatusDenied.Terminal())
	assert.False(t, StatusRejected.Terminal(), "rejected requests can still be revised")
	assert.False(t, StatusDraft.Terminal())
}

func TestRequestSlotAccess(t *testing.T) {
	r := Request{}
	require.NotNil(t, r.Slot(SlotDM))
	require.Nil(t, r.Slot(SlotNone))

	r.DM.By = "A"
	r.RD.By = "B"
	r.AVP.By = "C"
	r.GVP.By = "D"
	r.NextApproverName = "E"

	r.ClearApprovalTrack()

	assert.Empty(t, r.DM.By)
	assert.Empty(t, r.RD.By)
	assert.Empty(t, r.AVP.By)
	assert.Empty(t, r.GVP.By)
	assert.Empty(t, r.NextApproverName)
	assert.Nil(t, r.NextApproverID)
}
